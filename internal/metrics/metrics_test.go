package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(get().ticketsCreated.WithLabelValues("report", "discord"))
	TicketCreated("report", "discord")
	TicketCreated("report", "discord")
	assert.Equal(t, before+2, testutil.ToFloat64(get().ticketsCreated.WithLabelValues("report", "discord")))

	SetLinkedChats(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(get().openTickets))

	swept := testutil.ToFloat64(get().sweptFiles)
	FilesSwept(0)
	FilesSwept(4)
	assert.Equal(t, swept+4, testutil.ToFloat64(get().sweptFiles))

	failed := testutil.ToFloat64(get().events.WithLabelValues("ticket.closed", "failed"))
	EventPublished("ticket.closed", "failed")
	assert.Equal(t, failed+1, testutil.ToFloat64(get().events.WithLabelValues("ticket.closed", "failed")))
}

func TestUploadTimerObserves(t *testing.T) {
	done := UploadTimer("video")
	done()
	assert.Equal(t, 1, testutil.CollectAndCount(get().uploadDuration))
}

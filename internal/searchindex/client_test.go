package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTicket() *model.Ticket {
	closed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Ticket{
		ID:                   7,
		OriginChatID:         model.StringPtr("555"),
		DestinationChannelID: "chan-7",
		Type:                 model.TicketTypeReport,
		Answers:              model.Answers{"nickname": "Ivan"},
		Messages: []model.Message{
			{Sender: "@ivan", Content: "привет"},
			{Sender: "mod", Content: "смотрим", Attachments: []string{"https://vk.com/doc1"}},
		},
		CreatedAt:      closed.Add(-time.Hour),
		ClosedAt:       &closed,
		ClosedByUserID: model.StringPtr("mod-1"),
	}
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(closedTicket())
	assert.Equal(t, int64(7), p.TicketID)
	assert.Equal(t, "report", p.Type)
	assert.Equal(t, "closed", p.Status)
	assert.Equal(t, "555", p.OriginChatID)
	assert.Empty(t, p.CreatorID)
	assert.Equal(t, "mod-1", p.ClosedBy)
	assert.Equal(t, "@ivan: привет\nmod: смотрим https://vk.com/doc1", p.Transcript)
}

func TestIndexPostsPayload(t *testing.T) {
	var got IndexTicketPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/index/ticket", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	require.True(t, c.Enabled())
	require.NoError(t, c.Index(context.Background(), closedTicket()))
	assert.Equal(t, int64(7), got.TicketID)
	assert.Equal(t, "Ivan", got.Answers["nickname"])
}

func TestIndexErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, NewClient(srv.URL).Index(context.Background(), closedTicket()))
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Index(context.Background(), closedTicket()))
}

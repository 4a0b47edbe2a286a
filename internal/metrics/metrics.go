package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type bridgeMetrics struct {
	ticketsCreated *prometheus.CounterVec
	ticketsClosed  *prometheus.CounterVec
	openTickets    prometheus.Gauge
	relayed        *prometheus.CounterVec
	deliveryErrors *prometheus.CounterVec
	attachments    *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	sweptFiles     prometheus.Counter
	events         *prometheus.CounterVec
}

var (
	once sync.Once
	inst *bridgeMetrics
)

func get() *bridgeMetrics {
	once.Do(func() {
		inst = newBridgeMetrics()
	})
	return inst
}

func newBridgeMetrics() *bridgeMetrics {
	return &bridgeMetrics{
		ticketsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "tickets",
			Name:      "created_total",
			Help:      "Tickets created, labeled by type and origin platform",
		}, []string{"type", "origin"}),
		ticketsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "tickets",
			Name:      "closed_total",
			Help:      "Tickets closed, labeled by type",
		}, []string{"type"}),
		openTickets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ticket_bridge",
			Subsystem: "tickets",
			Name:      "linked_chats",
			Help:      "Telegram chats currently linked to an open ticket channel",
		}),
		relayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Messages appended to transcripts, labeled by source platform",
		}, []string{"from"}),
		deliveryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "relay",
			Name:      "delivery_errors_total",
			Help:      "Failed deliveries to the counterpart platform",
		}, []string{"to"}),
		attachments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "attachments",
			Name:      "processed_total",
			Help:      "Attachments processed, labeled by kind and result (cached, uploaded, failed)",
		}, []string{"kind", "result"}),
		uploadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ticket_bridge",
			Subsystem: "attachments",
			Name:      "upload_duration_seconds",
			Help:      "Download plus re-host duration",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		sweptFiles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "janitor",
			Name:      "swept_files_total",
			Help:      "Stale temp files removed from the downloads directory",
		}),
		events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket_bridge",
			Subsystem: "kafka",
			Name:      "events_total",
			Help:      "Ticket events published, labeled by event and result (sent, failed)",
		}, []string{"event", "result"}),
	}
}

func TicketCreated(ticketType, origin string) {
	get().ticketsCreated.WithLabelValues(ticketType, origin).Inc()
}

func TicketClosed(ticketType string) {
	get().ticketsClosed.WithLabelValues(ticketType).Inc()
}

func SetLinkedChats(n int) {
	get().openTickets.Set(float64(n))
}

func MessageRelayed(from string) {
	get().relayed.WithLabelValues(from).Inc()
}

func DeliveryFailed(to string) {
	get().deliveryErrors.WithLabelValues(to).Inc()
}

// Attachment учитывает вложение; result: cached, uploaded, failed.
func Attachment(kind, result string) {
	get().attachments.WithLabelValues(kind, result).Inc()
}

// UploadTimer возвращает функцию, фиксирующую длительность загрузки.
func UploadTimer(kind string) func() {
	start := time.Now()
	return func() {
		get().uploadDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func FilesSwept(n int) {
	get().sweptFiles.Add(float64(n))
}

func EventPublished(event, result string) {
	get().events.WithLabelValues(event, result).Inc()
}

package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/metrics"
	"github.com/segmentio/kafka-go"
)

// Event — имя события жизненного цикла тикета.
type Event string

const (
	EventTicketCreated Event = "ticket.created"
	EventTicketClosed  Event = "ticket.closed"
	// EventTicketReindex повторно отправляет закрытый транскрипт в поиск.
	EventTicketReindex Event = "ticket.reindex"
)

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены моком в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event Event, ticketID int64, fields map[string]interface{})
}

// Producer пишет события тикетов в топик Kafka (best-effort, ошибки только логируются).
type Producer struct {
	writer *kafka.Writer
	now    func() time.Time
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой — методы no-op.
func NewProducer(brokers []string, topic string) *Producer {
	p := &Producer{now: time.Now}
	if len(brokers) == 0 || topic == "" {
		return p
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	return p
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent публикует событие тикета с ключом ticket id: события одного тикета
// попадают в одну партицию и читаются по порядку.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event Event, ticketID int64, fields map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg, err := encodeEvent(event, ticketID, fields, p.now())
	if err != nil {
		log.Printf("kafka: ticket %d: marshal %s: %v", ticketID, event, err)
		metrics.EventPublished(string(event), "failed")
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("kafka: ticket %d: write %s: %v", ticketID, event, err)
		metrics.EventPublished(string(event), "failed")
		return
	}
	metrics.EventPublished(string(event), "sent")
}

// encodeEvent: тело — fields плюс event, ticket_id и emitted_at; имя события дублируется в заголовке.
func encodeEvent(event Event, ticketID int64, fields map[string]interface{}, at time.Time) (kafka.Message, error) {
	body := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		body[k] = v
	}
	body["event"] = string(event)
	body["ticket_id"] = ticketID
	body["emitted_at"] = at.UTC().Format(time.RFC3339)
	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(strconv.FormatInt(ticketID, 10)),
		Value:   value,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event)}},
		Time:    at,
	}, nil
}

// Close дожидается отправки буфера и закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

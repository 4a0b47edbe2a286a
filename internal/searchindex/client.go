package searchindex

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/psds-microservice/ticket-bridge/internal/model"
)

// Client отправляет транскрипты тикетов в search-service (best-effort).
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient возвращает клиент. Если baseURL пустой, вызовы IndexTicket — no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resty.New().SetTimeout(5 * time.Second),
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

// IndexTicketPayload — тело POST /search/index/ticket.
type IndexTicketPayload struct {
	TicketID     int64             `json:"ticket_id"`
	Type         string            `json:"type"`
	Title        string            `json:"title"`
	ChannelID    string            `json:"channel_id"`
	OriginChatID string            `json:"origin_chat_id,omitempty"`
	CreatorID    string            `json:"creator_id,omitempty"`
	ClosedBy     string            `json:"closed_by,omitempty"`
	Status       string            `json:"status"`
	Answers      map[string]string `json:"answers"`
	Transcript   string            `json:"transcript"`
	CreatedAt    time.Time         `json:"created_at"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty"`
}

// NewPayload собирает документ индекса; транскрипт — строки "отправитель: текст [вложения]".
func NewPayload(t *model.Ticket) IndexTicketPayload {
	status := "open"
	if !t.IsOpen() {
		status = "closed"
	}
	var b strings.Builder
	for _, m := range t.Messages {
		b.WriteString(m.Sender)
		b.WriteString(": ")
		b.WriteString(m.Content)
		for _, a := range m.Attachments {
			b.WriteString(" ")
			b.WriteString(a)
		}
		b.WriteString("\n")
	}
	answers := map[string]string(t.Answers)
	if answers == nil {
		answers = map[string]string{}
	}
	return IndexTicketPayload{
		TicketID:     t.ID,
		Type:         t.Type.String(),
		Title:        t.Type.Title(),
		ChannelID:    t.DestinationChannelID,
		OriginChatID: model.Deref(t.OriginChatID, ""),
		CreatorID:    model.Deref(t.CreatorUserID, ""),
		ClosedBy:     model.Deref(t.ClosedByUserID, ""),
		Status:       status,
		Answers:      answers,
		Transcript:   strings.TrimRight(b.String(), "\n"),
		CreatedAt:    t.CreatedAt,
		ClosedAt:     t.ClosedAt,
	}
}

// Index отправляет тикет и возвращает ошибку (для reindex-search).
func (c *Client) Index(ctx context.Context, t *model.Ticket) error {
	if c.baseURL == "" {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(NewPayload(t)).
		Post(c.baseURL + "/search/index/ticket")
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("searchindex: status %d for ticket %d", resp.StatusCode(), t.ID)
	}
	return nil
}

// IndexTicket — Index с логированием ошибки; вызывается в фоне после закрытия тикета.
func (c *Client) IndexTicket(ctx context.Context, t *model.Ticket) {
	if err := c.Index(ctx, t); err != nil {
		log.Printf("%v", err)
	}
}

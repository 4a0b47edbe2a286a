package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// TicketCounter — имя последовательности, из которой выдаются id тикетов.
const TicketCounter = "ticketCounter"

// Ticket — запись об одном обращении в поддержку.
type Ticket struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OriginChatID         *string    `gorm:"index" json:"origin_chat_id,omitempty"`
	DestinationChannelID string     `gorm:"index;not null" json:"destination_channel_id"`
	CreatorUserID        *string    `gorm:"index" json:"creator_user_id,omitempty"`
	Type                 TicketType `gorm:"type:varchar(32);index;not null" json:"type"`
	Answers              Answers    `gorm:"type:jsonb;not null" json:"answers"`
	Messages             []Message  `gorm:"foreignKey:TicketID" json:"messages"`

	CreatedAt      time.Time  `json:"created_at"`
	ClosedAt       *time.Time `gorm:"index" json:"closed_at,omitempty"`
	ClosedByUserID *string    `json:"closed_by_user_id,omitempty"`
}

// IsOpen reports whether the ticket has not been closed yet.
func (t *Ticket) IsOpen() bool { return t.ClosedAt == nil }

// Message — одно пересланное сообщение в транскрипте тикета.
type Message struct {
	ID             int64          `gorm:"primaryKey" json:"-"`
	TicketID       int64          `gorm:"index;not null" json:"-"`
	Sender         string         `gorm:"type:varchar(255);not null" json:"sender"`
	DiscordUserID  *string        `json:"discord_user_id,omitempty"`
	TelegramUserID *string        `json:"telegram_user_id,omitempty"`
	Content        string         `gorm:"type:text" json:"content"`
	Attachments    pq.StringArray `gorm:"type:text[]" json:"attachments"`
	Timestamp      time.Time      `gorm:"not null" json:"timestamp"`
}

func (Message) TableName() string { return "ticket_messages" }

// Counter — именованная последовательность; Seq равен последнему выданному значению.
type Counter struct {
	Name string `gorm:"primaryKey;type:varchar(64)"`
	Seq  int64  `gorm:"not null"`
}

// Answers — ответы анкеты: поле -> текст.
type Answers map[string]string

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

func (a *Answers) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Answers{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("answers: unsupported type %T", src)
	}
	out := Answers{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("answers: %w", err)
	}
	*a = out
	return nil
}

// StringPtr возвращает nil для пустой строки.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref возвращает значение указателя или def.
func Deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

package ticket

import (
	"context"

	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/model"
)

// Platform — откуда пришло сообщение.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// ChannelSpec — параметры канала тикета.
type ChannelSpec struct {
	Name     string
	ParentID string
	// CreatorUserID получает права участника; пусто для тикетов из Telegram.
	CreatorUserID string
	// StaffRoleIDs получают права модератора (для заявок на администратора — админские роли).
	StaffRoleIDs []string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Author      string
	AuthorIcon  string
	Footer      string
	Color       int
	Fields      []EmbedField
}

// File — исходный файл вложения; адаптер сам скачивает его по URL.
type File struct {
	Name string
	URL  string
	MIME string
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button — кнопка под сообщением; Row задаёт строку клавиатуры.
type Button struct {
	ID    string
	Label string
	Style ButtonStyle
	Row   int
}

type OutboundMessage struct {
	Text    string
	Embed   *Embed
	Files   []File
	Buttons []Button
	// CloseControls — добавить кнопки "Закрыть тикет" / "Закрыть с причиной".
	CloseControls bool
	// MentionRoles — разрешить упоминания ролей (пинг модераторов).
	MentionRoles bool
}

// Guild — сторона Discord. Send возвращает errs.ErrPayloadTooLarge, если файлы не влезли.
type Guild interface {
	CreateTicketChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirect(ctx context.Context, userID string, msg OutboundMessage) error
}

// Chat — сторона Telegram.
type Chat interface {
	Send(ctx context.Context, chatID string, msg OutboundMessage) error
}

type AttachmentRelay interface {
	RelayAll(ctx context.Context, srcs []attachment.Source) []string
}

// Indexer — поисковый индекс закрытых транскриптов.
type Indexer interface {
	IndexTicket(ctx context.Context, t *model.Ticket)
}

package relay

import (
	"context"

	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

// Event — входящее событие платформы. Реализации перечислены ниже.
type Event interface {
	isEvent()
}

// NewMessage — обычное сообщение в канале тикета или в чате Telegram.
type NewMessage struct {
	From         ticket.Platform
	Key          string
	SenderLabel  string
	SenderUserID string
	Text         string
	Attachments  []attachment.Source
	FromBot      bool
}

// Actor — кто нажал кнопку / отправил форму / команду в Discord.
type Actor struct {
	UserID    string
	UserLabel string
	RoleIDs   []string
	ChannelID string
	// ParentID — категория канала, где сработало взаимодействие.
	ParentID string
}

type ButtonClicked struct {
	Actor
	Button  ButtonKind
	Respond Responder
}

type ModalSubmitted struct {
	Actor
	Form    FormKind
	Fields  map[string]string
	Respond Responder
}

type SlashCommand struct {
	Actor
	Command CommandKind
	// TargetChannelID — опция channel для панелей.
	TargetChannelID string
	Reason          string
	Respond         Responder
}

// MenuRequested — /start в Telegram.
type MenuRequested struct {
	ChatID string
}

// TypeSelected — нажатие кнопки меню Telegram.
type TypeSelected struct {
	ChatID string
	Data   string
}

func (NewMessage) isEvent()     {}
func (ButtonClicked) isEvent()  {}
func (ModalSubmitted) isEvent() {}
func (SlashCommand) isEvent()   {}
func (MenuRequested) isEvent()  {}
func (TypeSelected) isEvent()   {}

type Input struct {
	ID        string
	Label     string
	Paragraph bool
	Required  bool
}

type Modal struct {
	ID     string
	Title  string
	Inputs []Input
}

// Responder — ответ на взаимодействие Discord (все ответы видит только автор).
type Responder interface {
	Reply(ctx context.Context, text string) error
	Confirm(ctx context.Context, text string, button ticket.Button) error
	ShowModal(ctx context.Context, m Modal) error
	// Defer откладывает ответ; затем Edit.
	Defer(ctx context.Context) error
	Edit(ctx context.Context, text string) error
}

package intake

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

const (
	MsgCreated      = "Ваш тикет создан в Discord. Ожидайте ответа от поддержки."
	MsgCreateFailed = "Ошибка при создании тикета. Попробуйте позже."
	MsgUnknownType  = "Неизвестный тип тикета."
	MsgTextOnly     = "Пожалуйста, ответьте текстом."

	// брошенная анкета забывается через сутки
	stateTTL = 24 * time.Hour
)

// Types — типы, доступные в меню Telegram.
var Types = []model.TicketType{
	model.TicketTypeReport,
	model.TicketTypeAppealBan,
	model.TicketTypeReturnRole,
}

// TicketCreator — ticket.Manager.
type TicketCreator interface {
	CreateTicket(ctx context.Context, req ticket.CreateRequest) (*ticket.Result, error)
	Post(ctx context.Context, channelID, text string) error
}

type conversation struct {
	Type    model.TicketType
	Answers model.Answers
	Cursor  int
}

func (c *conversation) question() model.Question {
	return model.Questions(c.Type)[c.Cursor]
}

// Engine ведёт пошаговую анкету в чате Telegram.
type Engine struct {
	mu      sync.Mutex
	states  *cache.Cache
	creator TicketCreator
	chat    ticket.Chat
}

func NewEngine(creator TicketCreator, chat ticket.Chat) *Engine {
	return &Engine{
		states:  cache.New(stateTTL, time.Hour),
		creator: creator,
		chat:    chat,
	}
}

func allowed(t model.TicketType) bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

// Active — идёт ли анкета в чате.
func (e *Engine) Active(chatID string) bool {
	_, ok := e.states.Get(chatID)
	return ok
}

// Select начинает анкету заново, прежние ответы отбрасываются.
func (e *Engine) Select(ctx context.Context, chatID string, t model.TicketType) error {
	if !allowed(t) || len(model.Questions(t)) == 0 {
		e.say(ctx, chatID, MsgUnknownType)
		return fmt.Errorf("%w: ticket type %q not available in intake", errs.ErrValidation, t)
	}
	conv := &conversation{Type: t, Answers: model.Answers{}}
	e.mu.Lock()
	e.states.Set(chatID, conv, cache.DefaultExpiration)
	e.mu.Unlock()
	e.say(ctx, chatID, conv.question().Prompt)
	return nil
}

type Answer struct {
	ChatID      string
	SenderLabel string
	Text        string
	HasMedia    bool
}

// Handle принимает ответ на текущий вопрос. handled=false — анкеты в чате нет.
func (e *Engine) Handle(ctx context.Context, a Answer) (bool, error) {
	text := strings.TrimSpace(a.Text)

	e.mu.Lock()
	v, ok := e.states.Get(a.ChatID)
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	conv := v.(*conversation)
	if a.HasMedia || text == "" || strings.HasPrefix(text, "/") {
		prompt := conv.question().Prompt
		e.mu.Unlock()
		e.say(ctx, a.ChatID, MsgTextOnly+"\n"+prompt)
		return true, nil
	}

	conv.Answers[conv.question().Field] = a.Text
	conv.Cursor++
	if conv.Cursor < len(model.Questions(conv.Type)) {
		prompt := conv.question().Prompt
		e.states.Set(a.ChatID, conv, cache.DefaultExpiration)
		e.mu.Unlock()
		e.say(ctx, a.ChatID, prompt)
		return true, nil
	}
	// последний ответ: состояние снимается до создания, повторная отправка не создаст второй тикет
	e.states.Delete(a.ChatID)
	e.mu.Unlock()

	res, err := e.creator.CreateTicket(ctx, ticket.CreateRequest{
		Type:         conv.Type,
		Answers:      conv.Answers,
		CreatorLabel: a.SenderLabel,
		OriginChatID: a.ChatID,
	})
	if err != nil {
		e.say(ctx, a.ChatID, MsgCreateFailed)
		return true, err
	}
	e.say(ctx, a.ChatID, MsgCreated)
	if extra := ticket.Supplement(conv.Type); extra != "" {
		if err := e.creator.Post(ctx, res.ChannelID, extra); err != nil {
			log.Printf("intake: ticket %d: post supplement: %v", res.Ticket.ID, err)
		}
	}
	return true, nil
}

func (e *Engine) say(ctx context.Context, chatID, text string) {
	if err := e.chat.Send(ctx, chatID, ticket.OutboundMessage{Text: text}); err != nil {
		log.Printf("intake: send to %s: %v", chatID, err)
	}
}

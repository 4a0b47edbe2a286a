package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/intake"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

const (
	msgModOnly       = "Закрыть тикет может только модератор"
	msgNotFound      = "Тикет не найден"
	msgClosed        = "Тикет закрыт."
	msgConfirmClose  = "Вы уверены, что хотите закрыть тикет?"
	msgInvalidSteam  = "Неверный SteamID. Пожалуйста, введите корректный 17-значный SteamID или ссылку на профиль."
	msgCloseFailed   = "Не удалось закрыть тикет. Попробуйте позже."
	msgUnknownAction = "Неизвестное действие."
)

// Tickets — ticket.Manager.
type Tickets interface {
	CreateTicket(ctx context.Context, req ticket.CreateRequest) (*ticket.Result, error)
	CloseTicket(ctx context.Context, req ticket.CloseRequest) (*model.Ticket, error)
	RelayInbound(ctx context.Context, in ticket.InboundMessage) error
	Post(ctx context.Context, channelID, text string) error
	IsModerator(roleIDs []string) bool
}

// Intake — intake.Engine.
type Intake interface {
	Select(ctx context.Context, chatID string, t model.TicketType) error
	Handle(ctx context.Context, a intake.Answer) (bool, error)
}

// Appeals — bans.Service.
type Appeals interface {
	ResolveSteamID64(ctx context.Context, input string) (string, error)
	ReviewerDiscordID(ctx context.Context, steamID string) string
}

type Deps struct {
	Tickets Tickets
	Intake  Intake
	// Appeals может быть nil: SteamID тогда не проверяется.
	Appeals Appeals
	Guild   ticket.Guild
	Chat    ticket.Chat
}

// Dispatcher превращает события платформ в операции над тикетами.
type Dispatcher struct {
	tickets Tickets
	intake  Intake
	appeals Appeals
	guild   ticket.Guild
	chat    ticket.Chat
}

func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		tickets: d.Tickets,
		intake:  d.Intake,
		appeals: d.Appeals,
		guild:   d.Guild,
		chat:    d.Chat,
	}
}

// Dispatch обрабатывает одно событие. Ответ пользователю уже отправлен; ошибка — для лога.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relay: panic in %T: %v", ev, r)
		}
	}()
	switch e := ev.(type) {
	case NewMessage:
		return d.onMessage(ctx, e)
	case MenuRequested:
		return d.chat.Send(ctx, e.ChatID, telegramMenu())
	case TypeSelected:
		return d.onTypeSelected(ctx, e)
	case ButtonClicked:
		return d.onButton(ctx, e)
	case ModalSubmitted:
		return d.onModal(ctx, e)
	case SlashCommand:
		return d.onCommand(ctx, e)
	}
	return fmt.Errorf("relay: unsupported event %T", ev)
}

func (d *Dispatcher) onMessage(ctx context.Context, e NewMessage) error {
	if e.FromBot {
		return nil
	}
	if e.From == ticket.PlatformTelegram {
		if strings.HasPrefix(strings.TrimSpace(e.Text), "/start") {
			return d.chat.Send(ctx, e.Key, telegramMenu())
		}
		handled, err := d.intake.Handle(ctx, intake.Answer{
			ChatID:      e.Key,
			SenderLabel: e.SenderLabel,
			Text:        e.Text,
			HasMedia:    len(e.Attachments) > 0,
		})
		if handled || err != nil {
			return err
		}
	}
	return d.tickets.RelayInbound(ctx, ticket.InboundMessage{
		From:         e.From,
		Key:          e.Key,
		SenderLabel:  e.SenderLabel,
		SenderUserID: e.SenderUserID,
		Text:         e.Text,
		Attachments:  e.Attachments,
	})
}

func (d *Dispatcher) onTypeSelected(ctx context.Context, e TypeSelected) error {
	t, ok := ParseButton(e.Data).TicketType()
	if !ok {
		return d.chat.Send(ctx, e.ChatID, ticket.OutboundMessage{Text: intake.MsgUnknownType})
	}
	return d.intake.Select(ctx, e.ChatID, t)
}

func (d *Dispatcher) onButton(ctx context.Context, e ButtonClicked) error {
	switch e.Button {
	case ButtonReport, ButtonAppealBan, ButtonReturnRole, ButtonAdminApplication:
		t, _ := e.Button.TicketType()
		return e.Respond.ShowModal(ctx, ticketModal(t))
	case ButtonQuestion:
		return d.create(ctx, e.Actor, e.Respond, model.TicketTypeQuestion, model.Answers{}, "")
	case ButtonClose:
		if !d.tickets.IsModerator(e.RoleIDs) {
			return e.Respond.Reply(ctx, msgModOnly)
		}
		return e.Respond.Confirm(ctx, msgConfirmClose, ticket.Button{
			ID: ButtonConfirmClose.CustomID(), Label: "Да, закрыть", Style: ticket.ButtonDanger,
		})
	case ButtonConfirmClose:
		return d.close(ctx, e.Actor, e.Respond, "")
	case ButtonCloseWithReason:
		if !d.tickets.IsModerator(e.RoleIDs) {
			return e.Respond.Reply(ctx, msgModOnly)
		}
		return e.Respond.ShowModal(ctx, closeReasonModal())
	}
	return e.Respond.Reply(ctx, msgUnknownAction)
}

func (d *Dispatcher) onModal(ctx context.Context, e ModalSubmitted) error {
	if e.Form == FormCloseReason {
		return d.close(ctx, e.Actor, e.Respond, e.Fields["reason_input"])
	}
	t, ok := e.Form.TicketType()
	if !ok {
		return e.Respond.Reply(ctx, msgUnknownAction)
	}
	answers := model.Answers{}
	for _, q := range model.Questions(t) {
		answers[q.Field] = strings.TrimSpace(e.Fields[q.Field])
	}

	if t != model.TicketTypeAppealBan || d.appeals == nil {
		return d.create(ctx, e.Actor, e.Respond, t, answers, "")
	}

	if err := e.Respond.Defer(ctx); err != nil {
		return err
	}
	steamID, err := d.appeals.ResolveSteamID64(ctx, answers["steam"])
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return e.Respond.Edit(ctx, msgInvalidSteam)
		}
		// Steam недоступен: апелляцию принимаем без проверки
		log.Printf("relay: resolve steam id: %v", err)
	}
	reviewer := ""
	if steamID != "" {
		reviewer = d.appeals.ReviewerDiscordID(ctx, steamID)
	}
	return d.createDeferred(ctx, e.Actor, e.Respond, t, answers, reviewer)
}

func (d *Dispatcher) create(ctx context.Context, a Actor, r Responder, t model.TicketType, answers model.Answers, reviewer string) error {
	if err := r.Defer(ctx); err != nil {
		return err
	}
	return d.createDeferred(ctx, a, r, t, answers, reviewer)
}

func (d *Dispatcher) createDeferred(ctx context.Context, a Actor, r Responder, t model.TicketType, answers model.Answers, reviewer string) error {
	res, err := d.tickets.CreateTicket(ctx, ticket.CreateRequest{
		Type:          t,
		Answers:       answers,
		CreatorUserID: a.UserID,
		CreatorLabel:  a.UserLabel,
		ParentID:      a.ParentID,
	})
	if err != nil {
		if editErr := r.Edit(ctx, "Произошла ошибка при создании тикета: "+err.Error()); editErr != nil {
			log.Printf("relay: edit reply: %v", editErr)
		}
		return err
	}
	if err := r.Edit(ctx, fmt.Sprintf("Тикет #%d создан: <#%s>", res.Ticket.ID, res.ChannelID)); err != nil {
		log.Printf("relay: ticket %d: edit reply: %v", res.Ticket.ID, err)
	}

	extra := ticket.Supplement(t)
	if reviewer != "" {
		extra = ticket.AppealAdminNote(reviewer)
	}
	if extra != "" {
		if err := d.tickets.Post(ctx, res.ChannelID, extra); err != nil {
			log.Printf("relay: ticket %d: post supplement: %v", res.Ticket.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) close(ctx context.Context, a Actor, r Responder, reason string) error {
	_, err := d.tickets.CloseTicket(ctx, ticket.CloseRequest{
		ChannelID:     a.ChannelID,
		CloserID:      a.UserID,
		CloserRoleIDs: a.RoleIDs,
		Reason:        reason,
		Acknowledge:   func(ctx context.Context) error { return r.Reply(ctx, msgClosed) },
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrPermissionDenied):
		return r.Reply(ctx, msgModOnly)
	case errors.Is(err, errs.ErrTicketNotFound):
		return r.Reply(ctx, msgNotFound)
	}
	if replyErr := r.Reply(ctx, msgCloseFailed); replyErr != nil {
		log.Printf("relay: reply: %v", replyErr)
	}
	return err
}

func (d *Dispatcher) onCommand(ctx context.Context, e SlashCommand) error {
	switch e.Command {
	case CommandTicketPanel:
		if _, err := d.guild.Send(ctx, e.TargetChannelID, ticketPanel()); err != nil {
			_ = e.Respond.Reply(ctx, "Не удалось отправить панель.")
			return err
		}
		return e.Respond.Reply(ctx, fmt.Sprintf("Панель тикетов успешно создана в канале <#%s>!", e.TargetChannelID))
	case CommandAdminPanel:
		if _, err := d.guild.Send(ctx, e.TargetChannelID, adminPanel()); err != nil {
			_ = e.Respond.Reply(ctx, "Не удалось отправить панель.")
			return err
		}
		return e.Respond.Reply(ctx, fmt.Sprintf("Сообщение о наборе администраторов отправлено в канал <#%s>!", e.TargetChannelID))
	case CommandClose:
		return d.close(ctx, e.Actor, e.Respond, e.Reason)
	}
	return e.Respond.Reply(ctx, msgUnknownAction)
}

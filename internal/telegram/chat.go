package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

var _ ticket.Chat = (*Chat)(nil)

// maxCaption — лимит подписи к файлу в Bot API.
const maxCaption = 1024

// Sender — часть tgbotapi.BotAPI, через которую уходят сообщения.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Chat отправляет сообщения в чаты Telegram: текст с кнопками, затем файлы по одному.
type Chat struct {
	bot   Sender
	files *resty.Client
}

func NewChat(bot Sender) *Chat {
	return &Chat{bot: bot, files: resty.New().SetTimeout(2 * time.Minute)}
}

func (c *Chat) Send(ctx context.Context, chatID string, msg ticket.OutboundMessage) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: chat id %q: %v", errs.ErrValidation, chatID, err)
	}
	// короткий текст без кнопок уходит подписью к первому файлу
	caption := ""
	text := strings.TrimSpace(msg.Text)
	if len(msg.Files) > 0 && len(msg.Buttons) == 0 && len([]rune(msg.Text)) <= maxCaption {
		caption, text = msg.Text, ""
	}
	if text != "" {
		m := tgbotapi.NewMessage(id, msg.Text)
		if kb, ok := keyboard(msg.Buttons); ok {
			m.ReplyMarkup = kb
		}
		if err := c.send(m); err != nil {
			return err
		}
	}
	for i, f := range msg.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.files.R().SetContext(ctx).Get(f.URL)
		if err != nil {
			return fmt.Errorf("%w: fetch %s: %v", errs.ErrExternal, f.Name, err)
		}
		if resp.IsError() {
			return fmt.Errorf("%w: fetch %s: status %d", errs.ErrExternal, f.Name, resp.StatusCode())
		}
		if i > 0 {
			caption = ""
		}
		if err := c.send(fileMessage(id, f, resp.Body(), caption)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chat) send(m tgbotapi.Chattable) error {
	if _, err := c.bot.Send(m); err != nil {
		if isTooLarge(err) {
			return fmt.Errorf("%w: %v", errs.ErrPayloadTooLarge, err)
		}
		return fmt.Errorf("%w: telegram send: %v", errs.ErrExternal, err)
	}
	return nil
}

// keyboard раскладывает кнопки по строкам Button.Row.
func keyboard(buttons []ticket.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	row := -1
	for _, b := range buttons {
		if b.Row != row || len(rows) == 0 {
			rows = append(rows, nil)
			row = b.Row
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], tgbotapi.NewInlineKeyboardButtonData(b.Label, b.ID))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func fileMessage(chatID int64, f ticket.File, body []byte, caption string) tgbotapi.Chattable {
	data := tgbotapi.FileBytes{Name: f.Name, Bytes: body}
	switch attachment.KindFromMIME(f.MIME) {
	case attachment.KindPhoto:
		m := tgbotapi.NewPhoto(chatID, data)
		m.Caption = caption
		return m
	case attachment.KindVideo:
		m := tgbotapi.NewVideo(chatID, data)
		m.Caption = caption
		return m
	}
	m := tgbotapi.NewDocument(chatID, data)
	m.Caption = caption
	return m
}

func isTooLarge(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusRequestEntityTooLarge
	}
	return strings.Contains(err.Error(), "Request Entity Too Large")
}

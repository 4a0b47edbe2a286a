package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/relay"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

// Dispatcher — relay.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev relay.Event) error
}

// API — то, что поллеру нужно от tgbotapi.BotAPI.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// NewBot подключается к Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// Poller читает long polling и отдаёт события диспетчеру. Обновления одного чата
// обрабатываются по порядку, разные чаты — параллельно.
type Poller struct {
	api     API
	d       Dispatcher
	timeout time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// lane — очередь обновлений чата, которую разбирает одна горутина.
type lane struct {
	queue []tgbotapi.Update
}

func NewPoller(api API, d Dispatcher) *Poller {
	return &Poller{api: api, d: d, timeout: 5 * time.Minute, lanes: make(map[string]*lane)}
}

func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := p.api.GetUpdatesChan(u)
	defer p.wg.Wait()
	defer p.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			p.enqueue(upd)
		}
	}
}

// enqueue ставит обновление в очередь его чата; у свободного чата запускается обработчик.
func (p *Poller) enqueue(upd tgbotapi.Update) {
	key := updateChat(upd)
	p.mu.Lock()
	if l, busy := p.lanes[key]; busy {
		l.queue = append(l.queue, upd)
		p.mu.Unlock()
		return
	}
	l := &lane{}
	p.lanes[key] = l
	p.mu.Unlock()

	p.wg.Add(1)
	go p.drain(key, l, upd)
}

func (p *Poller) drain(key string, l *lane, upd tgbotapi.Update) {
	defer p.wg.Done()
	for {
		p.handle(upd)
		p.mu.Lock()
		if len(l.queue) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		upd = l.queue[0]
		l.queue = l.queue[1:]
		p.mu.Unlock()
	}
}

func updateChat(upd tgbotapi.Update) string {
	if cb := upd.CallbackQuery; cb != nil && cb.Message != nil && cb.Message.Chat != nil {
		return chatKey(cb.Message.Chat.ID)
	}
	if m := upd.Message; m != nil && m.Chat != nil {
		return chatKey(m.Chat.ID)
	}
	return ""
}

func (p *Poller) handle(upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegram: update %d: panic: %v", upd.UpdateID, r)
		}
	}()
	if cb := upd.CallbackQuery; cb != nil {
		if _, err := p.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.Printf("telegram: answer callback: %v", err)
		}
	}
	ev := p.event(upd)
	if ev == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.d.Dispatch(ctx, ev); err != nil {
		log.Printf("telegram: %T: %v", ev, err)
	}
}

func (p *Poller) event(upd tgbotapi.Update) relay.Event {
	if cb := upd.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return nil
		}
		return relay.TypeSelected{ChatID: chatKey(cb.Message.Chat.ID), Data: cb.Data}
	}
	m := upd.Message
	if m == nil || m.Chat == nil {
		return nil
	}
	if m.IsCommand() && m.Command() == "start" {
		return relay.MenuRequested{ChatID: chatKey(m.Chat.ID)}
	}
	label := senderLabel(m.From)
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	ev := relay.NewMessage{
		From:        ticket.PlatformTelegram,
		Key:         chatKey(m.Chat.ID),
		SenderLabel: label,
		Text:        text,
	}
	if m.From != nil {
		ev.SenderUserID = strconv.FormatInt(m.From.ID, 10)
		ev.FromBot = m.From.IsBot
	}
	for _, f := range media(m, label) {
		url, err := p.api.GetFileDirectURL(f.FileID)
		if err != nil {
			log.Printf("telegram: file url %s: %v", f.FileID, err)
			continue
		}
		f.URL = url
		ev.Attachments = append(ev.Attachments, f)
	}
	return ev
}

// media — вложения сообщения без URL; фото берётся в наибольшем размере.
func media(m *tgbotapi.Message, sender string) []attachment.Source {
	var out []attachment.Source
	if n := len(m.Photo); n > 0 {
		ph := m.Photo[n-1]
		out = append(out, attachment.Source{FileID: ph.FileID, MIME: "image/jpeg", Name: ph.FileUniqueID + ".jpg"})
	}
	if v := m.Video; v != nil {
		name := v.FileName
		if name == "" {
			name = v.FileUniqueID + ".mp4"
		}
		mime := v.MimeType
		if mime == "" {
			mime = "video/mp4"
		}
		out = append(out, attachment.Source{
			FileID:      v.FileID,
			MIME:        mime,
			Name:        name,
			Title:       "Видео от " + sender,
			Description: "Загружено через Telegram-бот",
		})
	}
	if d := m.Document; d != nil {
		mime := d.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		out = append(out, attachment.Source{FileID: d.FileID, MIME: mime, Name: d.FileName})
	}
	return out
}

// senderLabel: "@username", иначе имя и фамилия.
func senderLabel(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func chatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

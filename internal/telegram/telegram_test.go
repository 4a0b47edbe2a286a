package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/relay"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func fileServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatSendTextWithKeyboard(t *testing.T) {
	s := &fakeSender{}
	c := NewChat(s)
	err := c.Send(context.Background(), "42", ticket.OutboundMessage{
		Text: "Выберите тип тикета:",
		Buttons: []ticket.Button{
			{ID: "a", Label: "A"}, {ID: "b", Label: "B"}, {ID: "c", Label: "C", Row: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	m := s.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), m.ChatID)
	kb := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "c", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestChatSendFilesAfterText(t *testing.T) {
	srv := fileServer(t)
	s := &fakeSender{}
	c := NewChat(s)
	err := c.Send(context.Background(), "-100", ticket.OutboundMessage{
		Text: "[Discord] mod: смотри",
		Files: []ticket.File{
			{Name: "a.png", URL: srv.URL + "/a", MIME: "image/png"},
			{Name: "b.mp4", URL: srv.URL + "/b", MIME: "video/mp4"},
			{Name: "c.pdf", URL: srv.URL + "/c", MIME: "application/pdf"},
		},
	})
	require.NoError(t, err)
	require.Len(t, s.sent, 3)
	photo := s.sent[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, "[Discord] mod: смотри", photo.Caption)
	assert.Empty(t, s.sent[1].(tgbotapi.VideoConfig).Caption)
	assert.IsType(t, tgbotapi.DocumentConfig{}, s.sent[2])
}

func TestChatSendLongTextSeparately(t *testing.T) {
	srv := fileServer(t)
	s := &fakeSender{}
	long := strings.Repeat("я", maxCaption+1)
	err := NewChat(s).Send(context.Background(), "1", ticket.OutboundMessage{
		Text:  long,
		Files: []ticket.File{{Name: "a.png", URL: srv.URL + "/a", MIME: "image/png"}},
	})
	require.NoError(t, err)
	require.Len(t, s.sent, 2)
	assert.Equal(t, long, s.sent[0].(tgbotapi.MessageConfig).Text)
	assert.Empty(t, s.sent[1].(tgbotapi.PhotoConfig).Caption)
}

func TestChatSendErrors(t *testing.T) {
	srv := fileServer(t)

	err := NewChat(&fakeSender{}).Send(context.Background(), "abc", ticket.OutboundMessage{Text: "x"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	err = NewChat(&fakeSender{}).Send(context.Background(), "1", ticket.OutboundMessage{
		Files: []ticket.File{{Name: "x", URL: srv.URL + "/missing"}},
	})
	assert.ErrorIs(t, err, errs.ErrExternal)

	tooLarge := &fakeSender{err: &tgbotapi.Error{Code: http.StatusRequestEntityTooLarge, Message: "Request Entity Too Large"}}
	err = NewChat(tooLarge).Send(context.Background(), "1", ticket.OutboundMessage{
		Files: []ticket.File{{Name: "x.mp4", URL: srv.URL + "/x", MIME: "video/mp4"}},
	})
	assert.ErrorIs(t, err, errs.ErrPayloadTooLarge)

	err = NewChat(&fakeSender{err: errors.New("boom")}).Send(context.Background(), "1", ticket.OutboundMessage{Text: "x"})
	assert.ErrorIs(t, err, errs.ErrExternal)
}

func TestChatSendBlankIsNoop(t *testing.T) {
	s := &fakeSender{}
	require.NoError(t, NewChat(s).Send(context.Background(), "1", ticket.OutboundMessage{Text: "  "}))
	assert.Empty(t, s.sent)
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []tgbotapi.Chattable
	urls     map[string]string
	updates  chan tgbotapi.Update
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(id string) (string, error) {
	if u, ok := f.urls[id]; ok {
		return u, nil
	}
	return "", errors.New("no such file")
}

type recorder struct {
	events []relay.Event
}

func (r *recorder) Dispatch(_ context.Context, ev relay.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestPollerStartCommand(t *testing.T) {
	rec := &recorder{}
	p := NewPoller(&fakeAPI{}, rec)
	p.handle(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 7},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}})
	require.Len(t, rec.events, 1)
	assert.Equal(t, relay.MenuRequested{ChatID: "7"}, rec.events[0])
}

func TestPollerCallbackAnswered(t *testing.T) {
	api := &fakeAPI{}
	rec := &recorder{}
	p := NewPoller(api, rec)
	p.handle(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "unban_ticket",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}},
	}})
	require.Len(t, api.requests, 1)
	assert.Equal(t, "cb1", api.requests[0].(tgbotapi.CallbackConfig).CallbackQueryID)
	assert.Equal(t, []relay.Event{relay.TypeSelected{ChatID: "7", Data: "unban_ticket"}}, rec.events)
}

func TestPollerMessageWithMedia(t *testing.T) {
	api := &fakeAPI{urls: map[string]string{"big": "https://t/big.jpg", "vid": "https://t/v.mp4"}}
	rec := &recorder{}
	p := NewPoller(api, rec)
	p.handle(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 7},
		From:    &tgbotapi.User{ID: 99, UserName: "ivan"},
		Caption: "вот",
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileUniqueID: "s"},
			{FileID: "big", FileUniqueID: "b"},
		},
		Video:    &tgbotapi.Video{FileID: "vid", FileUniqueID: "v"},
		Document: &tgbotapi.Document{FileID: "gone", FileName: "x.pdf"},
	}})
	require.Len(t, rec.events, 1)
	msg := rec.events[0].(relay.NewMessage)
	assert.Equal(t, ticket.PlatformTelegram, msg.From)
	assert.Equal(t, "7", msg.Key)
	assert.Equal(t, "@ivan", msg.SenderLabel)
	assert.Equal(t, "99", msg.SenderUserID)
	assert.Equal(t, "вот", msg.Text)

	// документ без URL отброшен
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "big", msg.Attachments[0].FileID)
	assert.Equal(t, "https://t/big.jpg", msg.Attachments[0].URL)
	assert.Equal(t, "video/mp4", msg.Attachments[1].MIME)
	assert.Equal(t, "Видео от @ivan", msg.Attachments[1].Title)
	assert.Equal(t, "Загружено через Telegram-бот", msg.Attachments[1].Description)
}

func TestSenderLabel(t *testing.T) {
	assert.Equal(t, "@u", senderLabel(&tgbotapi.User{UserName: "u", FirstName: "A"}))
	assert.Equal(t, "Иван Петров", senderLabel(&tgbotapi.User{FirstName: "Иван", LastName: "Петров"}))
	assert.Equal(t, "Иван", senderLabel(&tgbotapi.User{FirstName: "Иван"}))
	assert.Empty(t, senderLabel(nil))
}

// gatedDispatcher держит события чата 1 до открытия gate.
type gatedDispatcher struct {
	gate chan struct{}
	seen chan relay.NewMessage
}

func (g *gatedDispatcher) Dispatch(_ context.Context, ev relay.Event) error {
	msg := ev.(relay.NewMessage)
	if msg.Key == "1" {
		<-g.gate
	}
	g.seen <- msg
	return nil
}

func textUpdate(chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}, Text: text}}
}

func TestPollerChatsDoNotBlockEachOther(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	d := &gatedDispatcher{gate: make(chan struct{}), seen: make(chan relay.NewMessage, 8)}
	p := NewPoller(api, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	api.updates <- textUpdate(1, "первое")
	api.updates <- textUpdate(1, "второе")
	api.updates <- textUpdate(2, "другой чат")

	select {
	case msg := <-d.seen:
		assert.Equal(t, "2", msg.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 waited for chat 1")
	}

	close(d.gate)
	var order []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-d.seen:
			order = append(order, msg.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("chat 1 updates not dispatched")
		}
	}
	assert.Equal(t, []string{"первое", "второе"}, order)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	p.mu.Lock()
	assert.Empty(t, p.lanes)
	p.mu.Unlock()
}

func TestPollerRunWaitsForHandlers(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	d := &gatedDispatcher{gate: make(chan struct{}), seen: make(chan relay.NewMessage, 1)}
	p := NewPoller(api, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	api.updates <- textUpdate(1, "долгое")
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before the handler finished")
	case <-time.After(100 * time.Millisecond):
	}
	close(d.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, "долгое", (<-d.seen).Text)
}

package ticket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	To  string
	Msg OutboundMessage
}

type fakeGuild struct {
	mu       sync.Mutex
	channels []ChannelSpec
	deleted  []string
	sent     []sent
	dms      []sent
	removed  []string
	// tooLarge — отклонять сообщения с файлами.
	tooLarge bool
	failSend bool
	next     int
}

func (g *fakeGuild) CreateTicketChannel(_ context.Context, spec ChannelSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels = append(g.channels, spec)
	return fmt.Sprintf("ch-%d", len(g.channels)), nil
}

func (g *fakeGuild) DeleteChannel(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, id)
	return nil
}

func (g *fakeGuild) Send(_ context.Context, channelID string, msg OutboundMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSend {
		return "", errs.ErrExternal
	}
	if g.tooLarge && len(msg.Files) > 0 {
		return "", errs.ErrPayloadTooLarge
	}
	g.sent = append(g.sent, sent{To: channelID, Msg: msg})
	g.next++
	return fmt.Sprintf("m-%d", g.next), nil
}

func (g *fakeGuild) DeleteMessage(_ context.Context, _, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, messageID)
	return nil
}

func (g *fakeGuild) SendDirect(_ context.Context, userID string, msg OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dms = append(g.dms, sent{To: userID, Msg: msg})
	return nil
}

func (g *fakeGuild) textsTo(channelID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		if s.To == channelID {
			out = append(out, s.Msg.Text)
		}
	}
	return out
}

type fakeChat struct {
	mu   sync.Mutex
	sent []sent
}

func (c *fakeChat) Send(_ context.Context, chatID string, msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{To: chatID, Msg: msg})
	return nil
}

func (c *fakeChat) all() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

type fakeAttachments struct{}

func (fakeAttachments) RelayAll(_ context.Context, srcs []attachment.Source) []string {
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		if strings.Contains(s.URL, "broken") {
			out = append(out, "")
			continue
		}
		out = append(out, "https://vk.com/doc1_"+s.FileID)
	}
	return out
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) ProduceTicketEvent(_ context.Context, event kafka.Event, _ int64, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, string(event))
}

type fixture struct {
	m      *Manager
	store  *servicetest.Store
	guild  *fakeGuild
	chat   *fakeChat
	events *fakeEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  servicetest.New(),
		guild:  &fakeGuild{},
		chat:   &fakeChat{},
		events: &fakeEvents{},
	}
	f.m = NewManager(Config{
		ModRoleIDs:             []string{"mod"},
		AdminRoleIDs:           []string{"admin"},
		ClosedTicketsChannelID: "archive",
		TelegramCategoryID:     "tg-category",
	}, Deps{
		Store:       f.store,
		Guild:       f.guild,
		Chat:        f.chat,
		Attachments: fakeAttachments{},
		Events:      f.events,
		Now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func TestCreateTicketIDsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorUserID: "u"})
			if assert.NoError(t, err) {
				ids <- res.Ticket.ID
			}
		}()
	}
	wg.Wait()
	close(ids)
	f.m.Wait()

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 20)
	for i := int64(1); i <= 20; i++ {
		assert.True(t, seen[i])
	}
}

func TestCreateReportFromDiscord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.m.CreateTicket(ctx, CreateRequest{
		Type:          model.TicketTypeReport,
		CreatorUserID: "u1",
		ParentID:      "cat",
		Answers: model.Answers{
			"nickname": "Ivan", "steam": "", "offender": "Bad", "server": "#1", "details": "teamkill",
		},
	})
	require.NoError(t, err)
	f.m.Wait()

	assert.Equal(t, int64(1), res.Ticket.ID)
	require.Len(t, f.guild.channels, 1)
	spec := f.guild.channels[0]
	assert.Equal(t, "обращение-1", spec.Name)
	assert.Equal(t, "cat", spec.ParentID)
	assert.Equal(t, "u1", spec.CreatorUserID)
	assert.Equal(t, []string{"mod"}, spec.StaffRoleIDs)

	// сводка, автоответ, пинг
	require.GreaterOrEqual(t, len(f.guild.sent), 3)
	summary := f.guild.sent[0].Msg
	require.NotNil(t, summary.Embed)
	assert.True(t, summary.CloseControls)
	var labels []string
	for _, fl := range summary.Embed.Fields {
		labels = append(labels, fl.Name)
	}
	assert.Equal(t, []string{"Ваш игровой никнейм", "Никнейм нарушителя", "На каком сервере произошло нарушение?", "Подробно опишите, что произошло"}, labels)
	assert.Contains(t, f.guild.sent[1].Msg.Text, "<@u1>")
	assert.Contains(t, f.guild.sent[1].Msg.Text, "видео или скриншоты")

	ping := f.guild.sent[2].Msg
	assert.True(t, ping.MentionRoles)
	assert.Contains(t, ping.Text, "<@&mod>")
	assert.Equal(t, []string{"m-3"}, f.guild.removed)

	stored, err := f.store.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())
	assert.Equal(t, "ch-1", stored.DestinationChannelID)
	assert.Equal(t, "teamkill", stored.Answers["details"])
	assert.Equal(t, []string{"ticket.created"}, f.events.events)
	assert.Zero(t, f.m.Links().Len())
}

func TestCreateFromTelegramLinksChat(t *testing.T) {
	f := newFixture(t)
	res, err := f.m.CreateTicket(context.Background(), CreateRequest{
		Type:         model.TicketTypeReturnRole,
		CreatorLabel: "@pilot",
		OriginChatID: "555",
		Answers:      model.Answers{"nickname": "P", "steam": ""},
	})
	require.NoError(t, err)
	f.m.Wait()

	assert.Equal(t, "обращение-1-tg", f.guild.channels[0].Name)
	assert.Equal(t, "tg-category", f.guild.channels[0].ParentID)
	ch, ok := f.m.Links().ChannelFor("555")
	require.True(t, ok)
	assert.Equal(t, res.ChannelID, ch)

	summary := f.guild.sent[0].Msg.Embed
	assert.Equal(t, "Тикет из Telegram", summary.Title)
	require.Len(t, summary.Fields, 2)
	assert.Equal(t, "—", summary.Fields[1].Value)
}

func TestAdminApplicationUsesAdminRoles(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreateTicket(context.Background(), CreateRequest{Type: model.TicketTypeAdminApplication, CreatorUserID: "u"})
	require.NoError(t, err)
	f.m.Wait()
	assert.Equal(t, []string{"admin"}, f.guild.channels[0].StaffRoleIDs)
}

func TestAppealBanSkipsPing(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreateTicket(context.Background(), CreateRequest{Type: model.TicketTypeAppealBan, CreatorUserID: "u"})
	require.NoError(t, err)
	f.m.Wait()
	for _, s := range f.guild.sent {
		assert.False(t, s.Msg.MentionRoles)
	}
	assert.Empty(t, f.guild.removed)
}

func TestCreatePersistenceFailureKeepsChannel(t *testing.T) {
	f := newFixture(t)
	f.store.InsertErr = assert.AnError
	_, err := f.m.CreateTicket(context.Background(), CreateRequest{Type: model.TicketTypeQuestion, CreatorUserID: "u", OriginChatID: "9"})
	require.ErrorIs(t, err, errs.ErrPersistence)
	f.m.Wait()
	assert.Len(t, f.guild.channels, 1)
	assert.Empty(t, f.guild.deleted)
	assert.Zero(t, f.m.Links().Len())
}

func TestCreateRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.CreateTicket(context.Background(), CreateRequest{Type: "complaint"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, f.guild.channels)
}

func TestRelayPreservesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{
			From: PlatformTelegram, Key: "42", SenderLabel: "tg", SenderUserID: "7", Text: fmt.Sprintf("msg %d", i),
		}))
	}
	f.m.Wait()

	stored, err := f.store.GetByID(ctx, res.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 5)
	for i, m := range stored.Messages {
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
		assert.Equal(t, "7", model.Deref(m.TelegramUserID, ""))
		assert.Nil(t, m.DiscordUserID)
	}
	texts := f.guild.textsTo(res.ChannelID)
	assert.Contains(t, texts, "[Telegram] tg: msg 0")
	assert.Contains(t, texts, "[Telegram] tg: msg 4")
}

func TestRelayDiscordToTelegramWithAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)

	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{
		From: PlatformDiscord, Key: res.ChannelID, SenderLabel: "mod", SenderUserID: "d1", Text: "смотрите",
		Attachments: []attachment.Source{
			{FileID: "a", URL: "https://cdn/a.png", Name: "a.png", MIME: "image/png"},
			{FileID: "b", URL: "https://cdn/broken.pdf", Name: "b.pdf"},
		},
	}))

	out := f.chat.all()
	require.Len(t, out, 1)
	assert.Equal(t, "42", out[0].To)
	assert.Equal(t, "[Discord] mod: смотрите", out[0].Msg.Text)
	assert.Len(t, out[0].Msg.Files, 2)

	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, []string{"https://vk.com/doc1_a"}, []string(stored.Messages[0].Attachments))
	assert.Equal(t, "d1", model.Deref(stored.Messages[0].DiscordUserID, ""))
}

func TestRelayFallsBackToLinksWhenTooLarge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)
	f.m.Wait()
	f.guild.tooLarge = true

	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{
		From: PlatformTelegram, Key: "42", SenderLabel: "tg", Text: "видео",
		Attachments: []attachment.Source{{FileID: "v", URL: "https://tg/v.mp4", MIME: "video/mp4"}},
	}))
	texts := f.guild.textsTo(res.ChannelID)
	assert.Equal(t, "[Telegram] tg: видео\nhttps://vk.com/doc1_v", texts[len(texts)-1])
}

func TestRelayIgnoresEmptyAndUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorUserID: "u"})
	require.NoError(t, err)
	f.m.Wait()
	before := len(f.guild.sent)

	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformDiscord, Key: res.ChannelID, SenderLabel: "u", Text: "   "}))
	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformDiscord, Key: "nowhere", SenderLabel: "u", Text: "hi"}))
	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformTelegram, Key: "999", SenderLabel: "x", Text: "hi"}))

	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	assert.Empty(t, stored.Messages)
	assert.Len(t, f.guild.sent, before)
	assert.Empty(t, f.chat.all())
}

func TestRelayDeliveryFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)
	f.m.Wait()
	f.guild.failSend = true

	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformTelegram, Key: "42", SenderLabel: "tg", Text: "hello"}))
	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	assert.Len(t, stored.Messages, 1)
}

func TestRelayRelinksFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)
	f.m.Wait()
	f.m.Links().RemoveChannel(res.ChannelID)

	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformTelegram, Key: "42", SenderLabel: "tg", Text: "hi"}))
	ch, ok := f.m.Links().ChannelFor("42")
	require.True(t, ok)
	assert.Equal(t, res.ChannelID, ch)
}

func TestCloseTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeReport, CreatorUserID: "u1", OriginChatID: "42"})
	require.NoError(t, err)
	f.m.Wait()

	acked := false
	closed, err := f.m.CloseTicket(ctx, CloseRequest{
		ChannelID: res.ChannelID, CloserID: "m1", CloserRoleIDs: []string{"other", "mod"},
		Acknowledge: func(context.Context) error { acked = true; return nil },
	})
	require.NoError(t, err)
	f.m.Wait()

	assert.True(t, acked)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, "m1", model.Deref(closed.ClosedByUserID, ""))
	assert.Equal(t, []string{res.ChannelID}, f.guild.deleted)
	_, linked := f.m.Links().ChannelFor("42")
	assert.False(t, linked)

	require.Len(t, f.guild.dms, 1)
	dm := f.guild.dms[0].Msg.Embed
	assert.Equal(t, "Тикет закрыт!", dm.Title)
	assert.Equal(t, noReason, dm.Fields[4].Value)
	require.Len(t, f.guild.textsTo("archive"), 1)
	assert.Equal(t, ClosedNotice, f.chat.all()[len(f.chat.all())-1].Msg.Text)
	assert.Contains(t, f.events.events, "ticket.closed")

	// повторное закрытие
	_, err = f.m.CloseTicket(ctx, CloseRequest{ChannelID: res.ChannelID, CloserID: "m2", CloserRoleIDs: []string{"mod"}})
	require.ErrorIs(t, err, errs.ErrTicketNotFound)
	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	assert.Equal(t, closed.ClosedAt.Unix(), stored.ClosedAt.Unix())
	assert.Equal(t, "m1", model.Deref(stored.ClosedByUserID, ""))
}

func TestCloseRequiresModerator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorUserID: "u1"})
	require.NoError(t, err)
	f.m.Wait()

	_, err = f.m.CloseTicket(ctx, CloseRequest{ChannelID: res.ChannelID, CloserID: "u1", CloserRoleIDs: []string{"admin"}})
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
	f.m.Wait()

	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	assert.True(t, stored.IsOpen())
	assert.Empty(t, f.guild.deleted)
}

func TestCloseWithReasonAfterRelays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.m.CreateTicket(ctx, CreateRequest{Type: model.TicketTypeQuestion, CreatorLabel: "tg", OriginChatID: "42"})
	require.NoError(t, err)
	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformTelegram, Key: "42", SenderLabel: "tg", Text: "a"}))
	require.NoError(t, f.m.RelayInbound(ctx, InboundMessage{From: PlatformDiscord, Key: res.ChannelID, SenderLabel: "mod", Text: "b"}))

	_, err = f.m.CloseTicket(ctx, CloseRequest{ChannelID: res.ChannelID, CloserID: "m", CloserRoleIDs: []string{"mod"}, Reason: "решено"})
	require.NoError(t, err)
	f.m.Wait()

	stored, _ := f.store.GetByID(ctx, res.Ticket.ID)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "a", stored.Messages[0].Content)
	assert.Equal(t, "b", stored.Messages[1].Content)
	// тикет из Telegram без автора в Discord — DM не отправляется
	assert.Empty(t, f.guild.dms)
}

func TestRehydrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Insert(ctx, &model.Ticket{ID: 1, OriginChatID: model.StringPtr("a"), DestinationChannelID: "c1", Type: model.TicketTypeReport}))
	require.NoError(t, f.store.Insert(ctx, &model.Ticket{ID: 2, DestinationChannelID: "c2", Type: model.TicketTypeReport}))
	closedAt := time.Now()
	require.NoError(t, f.store.Insert(ctx, &model.Ticket{ID: 3, OriginChatID: model.StringPtr("b"), DestinationChannelID: "c3", Type: model.TicketTypeReport, ClosedAt: &closedAt}))

	require.NoError(t, f.m.Rehydrate(ctx))
	assert.Equal(t, 1, f.m.Links().Len())
	ch, ok := f.m.Links().ChannelFor("a")
	assert.True(t, ok)
	assert.Equal(t, "c1", ch)
}

func TestIsModerator(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.m.IsModerator([]string{"x", "mod"}))
	assert.False(t, f.m.IsModerator([]string{"admin"}))
	assert.False(t, f.m.IsModerator(nil))
}

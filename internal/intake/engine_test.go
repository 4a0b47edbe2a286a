package intake

import (
	"context"
	"sync"
	"testing"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	mu    sync.Mutex
	texts []string
}

func (c *fakeChat) Send(_ context.Context, _ string, msg ticket.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, msg.Text)
	return nil
}

func (c *fakeChat) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texts[len(c.texts)-1]
}

type fakeCreator struct {
	reqs  []ticket.CreateRequest
	posts []string
	err   error
}

func (f *fakeCreator) CreateTicket(_ context.Context, req ticket.CreateRequest) (*ticket.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ticket.Result{Ticket: &model.Ticket{ID: int64(len(f.reqs))}, ChannelID: "ch"}, nil
}

func (f *fakeCreator) Post(_ context.Context, _, text string) error {
	f.posts = append(f.posts, text)
	return nil
}

func answer(t *testing.T, e *Engine, text string) {
	t.Helper()
	handled, err := e.Handle(context.Background(), Answer{ChatID: "c", SenderLabel: "@u", Text: text})
	require.NoError(t, err)
	require.True(t, handled)
}

func TestAppealBanConversation(t *testing.T) {
	chat := &fakeChat{}
	creator := &fakeCreator{}
	e := NewEngine(creator, chat)
	ctx := context.Background()

	require.NoError(t, e.Select(ctx, "c", model.TicketTypeAppealBan))
	assert.Equal(t, "Введите ваш игровой никнейм:", chat.last())

	answer(t, e, "Ivan")
	assert.Equal(t, "Введите SteamID64 или ссылку на профиль Steam (если есть):", chat.last())
	answer(t, e, "76561198000000000")
	answer(t, e, "Ошибочный бан")

	require.Len(t, creator.reqs, 1)
	req := creator.reqs[0]
	assert.Equal(t, model.TicketTypeAppealBan, req.Type)
	assert.Equal(t, "c", req.OriginChatID)
	assert.Equal(t, "@u", req.CreatorLabel)
	assert.Equal(t, model.Answers{"nickname": "Ivan", "steam": "76561198000000000", "reason": "Ошибочный бан"}, req.Answers)
	assert.Equal(t, MsgCreated, chat.last())
	assert.False(t, e.Active("c"))
	assert.Empty(t, creator.posts)

	handled, err := e.Handle(ctx, Answer{ChatID: "c", Text: "after"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestReturnRolePostsChecklist(t *testing.T) {
	creator := &fakeCreator{}
	e := NewEngine(creator, &fakeChat{})
	require.NoError(t, e.Select(context.Background(), "c", model.TicketTypeReturnRole))
	answer(t, e, "Pilot")
	answer(t, e, "")
	// пустой ответ не засчитывается
	assert.True(t, e.Active("c"))
	answer(t, e, "нет")

	require.Len(t, creator.reqs, 1)
	assert.Equal(t, []string{ticket.ReturnRoleChecklist}, creator.posts)
}

func TestMediaRepeatsQuestion(t *testing.T) {
	chat := &fakeChat{}
	e := NewEngine(&fakeCreator{}, chat)
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "c", model.TicketTypeReport))

	handled, err := e.Handle(ctx, Answer{ChatID: "c", HasMedia: true, Text: "caption"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, MsgTextOnly+"\nВведите ваш игровой никнейм:", chat.last())

	answer(t, e, "/start")
	assert.Equal(t, MsgTextOnly+"\nВведите ваш игровой никнейм:", chat.last())
}

func TestSelectRestartsConversation(t *testing.T) {
	creator := &fakeCreator{}
	e := NewEngine(creator, &fakeChat{})
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "c", model.TicketTypeReport))
	answer(t, e, "old nick")

	require.NoError(t, e.Select(ctx, "c", model.TicketTypeReturnRole))
	answer(t, e, "new nick")
	answer(t, e, "-")
	require.Len(t, creator.reqs, 1)
	assert.Equal(t, "new nick", creator.reqs[0].Answers["nickname"])
	assert.Equal(t, model.TicketTypeReturnRole, creator.reqs[0].Type)
}

func TestSelectUnknownType(t *testing.T) {
	chat := &fakeChat{}
	e := NewEngine(&fakeCreator{}, chat)
	err := e.Select(context.Background(), "c", model.TicketTypeQuestion)
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, MsgUnknownType, chat.last())
	assert.False(t, e.Active("c"))
}

func TestCreateFailureClearsState(t *testing.T) {
	chat := &fakeChat{}
	creator := &fakeCreator{err: errs.ErrPersistence}
	e := NewEngine(creator, chat)
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "c", model.TicketTypeReturnRole))
	answer(t, e, "a")

	handled, err := e.Handle(ctx, Answer{ChatID: "c", Text: "b"})
	assert.True(t, handled)
	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.Equal(t, MsgCreateFailed, chat.last())
	assert.False(t, e.Active("c"))
}

func TestConversationsAreIndependent(t *testing.T) {
	creator := &fakeCreator{}
	e := NewEngine(creator, &fakeChat{})
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "a", model.TicketTypeReturnRole))
	require.NoError(t, e.Select(ctx, "b", model.TicketTypeAppealBan))

	_, err := e.Handle(ctx, Answer{ChatID: "a", Text: "A1"})
	require.NoError(t, err)
	_, err = e.Handle(ctx, Answer{ChatID: "b", Text: "B1"})
	require.NoError(t, err)
	_, err = e.Handle(ctx, Answer{ChatID: "a", Text: "A2"})
	require.NoError(t, err)

	require.Len(t, creator.reqs, 1)
	assert.Equal(t, "a", creator.reqs[0].OriginChatID)
	assert.True(t, e.Active("b"))
}

package ticket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/metrics"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

type Config struct {
	ModRoleIDs             []string
	AdminRoleIDs           []string
	ClosedTicketsChannelID string
	// TelegramCategoryID — родительская категория каналов тикетов из Telegram.
	TelegramCategoryID string
	CloseGrace         time.Duration
	Location           *time.Location
}

type Deps struct {
	Store       service.TicketServicer
	Guild       Guild
	Chat        Chat
	Attachments AttachmentRelay
	Events      kafka.TicketEventProducer
	Search      Indexer
	Links       *LinkMap
	Now         func() time.Time
}

// Manager — создание, пересылка и закрытие тикетов.
type Manager struct {
	cfg   Config
	store service.TicketServicer
	guild Guild
	chat  Chat
	att   AttachmentRelay
	ev    kafka.TicketEventProducer
	idx   Indexer
	links *LinkMap
	now   func() time.Time
	mods  map[string]bool
	wg    sync.WaitGroup
}

func NewManager(cfg Config, d Deps) *Manager {
	if cfg.Location == nil {
		cfg.Location = moscow()
	}
	if d.Links == nil {
		d.Links = NewLinkMap()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	mods := make(map[string]bool, len(cfg.ModRoleIDs))
	for _, id := range cfg.ModRoleIDs {
		mods[id] = true
	}
	return &Manager{
		cfg:   cfg,
		store: d.Store,
		guild: d.Guild,
		chat:  d.Chat,
		att:   d.Attachments,
		ev:    d.Events,
		idx:   d.Search,
		links: d.Links,
		now:   d.Now,
		mods:  mods,
	}
}

func (m *Manager) Links() *LinkMap { return m.links }

// IsModerator — есть ли у пользователя хотя бы одна роль модератора.
func (m *Manager) IsModerator(roleIDs []string) bool {
	for _, id := range roleIDs {
		if m.mods[id] {
			return true
		}
	}
	return false
}

// Wait дожидается фоновых задач (уведомления, удаление каналов).
func (m *Manager) Wait() { m.wg.Wait() }

// Rehydrate восстанавливает связи чат↔канал по открытым тикетам.
func (m *Manager) Rehydrate(ctx context.Context) error {
	open, err := m.store.FindAllOpen(ctx)
	if err != nil {
		return err
	}
	for _, t := range open {
		if chat := model.Deref(t.OriginChatID, ""); chat != "" {
			m.links.Set(chat, t.DestinationChannelID)
		}
	}
	metrics.SetLinkedChats(m.links.Len())
	log.Printf("ticket: rehydrated %d links from %d open tickets", m.links.Len(), len(open))
	return nil
}

type CreateRequest struct {
	Type    model.TicketType
	Answers model.Answers
	// CreatorUserID — Discord id автора; пусто для тикетов из Telegram.
	CreatorUserID string
	// CreatorLabel — отображаемое имя (для тикетов из Telegram).
	CreatorLabel string
	ParentID     string
	OriginChatID string
}

type Result struct {
	Ticket    *model.Ticket
	ChannelID string
}

func (m *Manager) CreateTicket(ctx context.Context, req CreateRequest) (*Result, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: ticket type %q", errs.ErrValidation, req.Type)
	}
	fromTelegram := req.OriginChatID != ""
	parent := req.ParentID
	if fromTelegram && parent == "" {
		parent = m.cfg.TelegramCategoryID
	}

	id, err := m.store.NextCounterValue(ctx, model.TicketCounter)
	if err != nil {
		return nil, err
	}

	staff := m.cfg.ModRoleIDs
	if req.Type == model.TicketTypeAdminApplication {
		staff = m.cfg.AdminRoleIDs
	}
	channelID, err := m.guild.CreateTicketChannel(ctx, ChannelSpec{
		Name:          channelName(id, fromTelegram),
		ParentID:      parent,
		CreatorUserID: req.CreatorUserID,
		StaffRoleIDs:  staff,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create channel for ticket %d: %v", errs.ErrExternal, id, err)
	}

	if _, err := m.guild.Send(ctx, channelID, OutboundMessage{Embed: summaryEmbed(req), CloseControls: true}); err != nil {
		log.Printf("ticket: %d: post summary: %v", id, err)
	}
	who := req.CreatorLabel
	if req.CreatorUserID != "" {
		who = mention(req.CreatorUserID)
	}
	if _, err := m.guild.Send(ctx, channelID, OutboundMessage{Text: autoReply(req.Type, who)}); err != nil {
		log.Printf("ticket: %d: post auto-reply: %v", id, err)
	}

	answers := req.Answers
	if answers == nil {
		answers = model.Answers{}
	}
	t := &model.Ticket{
		ID:                   id,
		OriginChatID:         model.StringPtr(req.OriginChatID),
		DestinationChannelID: channelID,
		CreatorUserID:        model.StringPtr(req.CreatorUserID),
		Type:                 req.Type,
		Answers:              answers,
		CreatedAt:            m.now(),
	}
	if err := m.store.Insert(ctx, t); err != nil {
		log.Printf("ticket: %d: persist failed, channel %s left orphaned: %v", id, channelID, err)
		if errors.Is(err, errs.ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}

	if fromTelegram {
		m.links.Set(req.OriginChatID, channelID)
		metrics.SetLinkedChats(m.links.Len())
	}

	origin := string(PlatformDiscord)
	if fromTelegram {
		origin = string(PlatformTelegram)
	}
	metrics.TicketCreated(string(req.Type), origin)

	if req.Type != model.TicketTypeAppealBan && len(staff) > 0 {
		m.background("ping", func(ctx context.Context) {
			msgID, err := m.guild.Send(ctx, channelID, OutboundMessage{Text: pingText(staff, req.Type), MentionRoles: true})
			if err != nil {
				log.Printf("ticket: %d: ping: %v", id, err)
				return
			}
			if err := m.guild.DeleteMessage(ctx, channelID, msgID); err != nil {
				log.Printf("ticket: %d: delete ping: %v", id, err)
			}
		})
	}
	m.publish(kafka.EventTicketCreated, t, nil)

	return &Result{Ticket: t, ChannelID: channelID}, nil
}

// Post публикует дополнительный текст в канал тикета.
func (m *Manager) Post(ctx context.Context, channelID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if _, err := m.guild.Send(ctx, channelID, OutboundMessage{Text: text}); err != nil {
		return fmt.Errorf("%w: post to %s: %v", errs.ErrExternal, channelID, err)
	}
	return nil
}

type CloseRequest struct {
	ChannelID     string
	CloserID      string
	CloserRoleIDs []string
	Reason        string
	// Acknowledge отвечает закрывающему до удаления канала.
	Acknowledge func(ctx context.Context) error
}

func (m *Manager) CloseTicket(ctx context.Context, req CloseRequest) (*model.Ticket, error) {
	if !m.IsModerator(req.CloserRoleIDs) {
		return nil, errs.ErrPermissionDenied
	}
	open, err := m.store.FindOpenByChannel(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	closed, err := m.store.Close(ctx, open.ID, req.CloserID, m.now())
	if err != nil {
		return nil, err
	}
	m.links.RemoveChannel(req.ChannelID)
	metrics.SetLinkedChats(m.links.Len())
	metrics.TicketClosed(string(closed.Type))

	embed := closureEmbed(closed, req.CloserID, req.Reason, m.cfg.Location)
	if creator := model.Deref(closed.CreatorUserID, ""); creator != "" {
		m.background("dm creator", func(ctx context.Context) {
			if err := m.guild.SendDirect(ctx, creator, OutboundMessage{Embed: embed}); err != nil {
				log.Printf("ticket: %d: dm creator %s: %v", closed.ID, creator, err)
			}
		})
	}
	if archive := m.cfg.ClosedTicketsChannelID; archive != "" {
		m.background("archive", func(ctx context.Context) {
			if _, err := m.guild.Send(ctx, archive, OutboundMessage{Embed: embed}); err != nil {
				log.Printf("ticket: %d: archive post: %v", closed.ID, err)
			}
		})
	}
	if chat := model.Deref(closed.OriginChatID, ""); chat != "" {
		m.background("notify chat", func(ctx context.Context) {
			if err := m.sendChat(ctx, chat, OutboundMessage{Text: ClosedNotice}); err != nil {
				log.Printf("ticket: %d: notify chat %s: %v", closed.ID, chat, err)
			}
		})
	}
	m.publish(kafka.EventTicketClosed, closed, map[string]interface{}{"reason": req.Reason, "closed_by": req.CloserID})
	if m.idx != nil {
		m.background("search index", func(ctx context.Context) {
			full, err := m.store.GetByID(ctx, closed.ID)
			if err != nil {
				log.Printf("ticket: %d: load for index: %v", closed.ID, err)
				return
			}
			m.idx.IndexTicket(ctx, full)
		})
	}

	if req.Acknowledge != nil {
		if err := req.Acknowledge(ctx); err != nil {
			log.Printf("ticket: %d: acknowledge: %v", closed.ID, err)
		}
	}

	channelID := req.ChannelID
	grace := m.cfg.CloseGrace
	m.background("delete channel", func(ctx context.Context) {
		if grace > 0 {
			select {
			case <-time.After(grace):
			case <-ctx.Done():
			}
		}
		delCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.guild.DeleteChannel(delCtx, channelID); err != nil {
			log.Printf("ticket: %d: delete channel %s: %v", closed.ID, channelID, err)
		}
	})
	return closed, nil
}

type InboundMessage struct {
	From Platform
	// Key — id канала Discord или id чата Telegram.
	Key          string
	SenderLabel  string
	SenderUserID string
	Text         string
	Attachments  []attachment.Source
}

// RelayInbound пересылает сообщение на другую сторону и дописывает его в транскрипт.
func (m *Manager) RelayInbound(ctx context.Context, in InboundMessage) error {
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
		return nil
	}
	t, err := m.resolve(ctx, in.From, in.Key)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			return nil
		}
		return err
	}

	var durable []string
	if len(in.Attachments) > 0 && m.att != nil {
		for _, u := range m.att.RelayAll(ctx, in.Attachments) {
			if u != "" {
				durable = append(durable, u)
			}
		}
	}

	m.deliver(ctx, t, in, durable)

	msg := model.Message{
		Sender:      in.SenderLabel,
		Content:     in.Text,
		Attachments: durable,
		Timestamp:   m.now(),
	}
	switch in.From {
	case PlatformTelegram:
		msg.TelegramUserID = model.StringPtr(in.SenderUserID)
	default:
		msg.DiscordUserID = model.StringPtr(in.SenderUserID)
	}
	if err := m.store.AppendMessage(ctx, t.ID, msg); err != nil {
		return err
	}
	metrics.MessageRelayed(string(in.From))
	return nil
}

// resolve находит открытый тикет по ключу платформы.
func (m *Manager) resolve(ctx context.Context, from Platform, key string) (*model.Ticket, error) {
	if from != PlatformTelegram {
		return m.store.FindOpenByChannel(ctx, key)
	}
	if channelID, ok := m.links.ChannelFor(key); ok {
		t, err := m.store.FindOpenByChannel(ctx, channelID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, errs.ErrTicketNotFound) {
			return nil, err
		}
		m.links.RemoveChannel(channelID)
	}
	t, err := m.store.FindOpenByChatID(ctx, key)
	if err != nil {
		return nil, err
	}
	m.links.Set(key, t.DestinationChannelID)
	metrics.SetLinkedChats(m.links.Len())
	return t, nil
}

func (m *Manager) deliver(ctx context.Context, t *model.Ticket, in InboundMessage, durable []string) {
	prefix := relayPrefix(in.From, in.SenderLabel)
	files := make([]File, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		files = append(files, File{Name: a.Name, URL: a.URL, MIME: a.MIME})
	}
	msg := OutboundMessage{Text: prefix + in.Text, Files: files}
	fallback := OutboundMessage{Text: strings.TrimRight(prefix+in.Text+"\n"+strings.Join(durable, "\n"), "\n")}

	var (
		to   Platform
		send func(OutboundMessage) error
	)
	switch in.From {
	case PlatformTelegram:
		to = PlatformDiscord
		send = func(om OutboundMessage) error {
			_, err := m.guild.Send(ctx, t.DestinationChannelID, om)
			return err
		}
	default:
		chat := model.Deref(t.OriginChatID, "")
		if chat == "" {
			return
		}
		to = PlatformTelegram
		send = func(om OutboundMessage) error { return m.sendChat(ctx, chat, om) }
	}

	err := send(msg)
	if errors.Is(err, errs.ErrPayloadTooLarge) {
		log.Printf("ticket: %d: payload too large for %s, sending links", t.ID, to)
		err = send(fallback)
	}
	if err != nil {
		metrics.DeliveryFailed(string(to))
		log.Printf("ticket: %d: deliver to %s: %v", t.ID, to, err)
	}
}

// sendChat пропускает пустые пересылки (только префикс без содержимого).
func (m *Manager) sendChat(ctx context.Context, chatID string, msg OutboundMessage) error {
	if m.chat == nil {
		return nil
	}
	if len(msg.Files) == 0 && isEmptyRelay(msg.Text) {
		return nil
	}
	return m.chat.Send(ctx, chatID, msg)
}

func (m *Manager) publish(event kafka.Event, t *model.Ticket, extra map[string]interface{}) {
	if m.ev == nil {
		return
	}
	payload := map[string]interface{}{
		"type":           string(t.Type),
		"channel_id":     t.DestinationChannelID,
		"origin_chat_id": model.Deref(t.OriginChatID, ""),
		"creator_id":     model.Deref(t.CreatorUserID, ""),
	}
	for k, v := range extra {
		payload[k] = v
	}
	m.background(string(event), func(ctx context.Context) {
		m.ev.ProduceTicketEvent(ctx, event, t.ID, payload)
	})
}

// background запускает задачу, не блокируя основную операцию; ошибки только логируются.
func (m *Manager) background(name string, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ticket: %s: panic: %v", name, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second+m.cfg.CloseGrace)
		defer cancel()
		fn(ctx)
	}()
}

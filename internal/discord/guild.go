package discord

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

var _ ticket.Guild = (*Guild)(nil)

// Guild — операции с сервером Discord через REST сессии.
type Guild struct {
	s       *discordgo.Session
	guildID string
	files   *resty.Client
}

func NewGuild(s *discordgo.Session, guildID string) *Guild {
	return &Guild{
		s:       s,
		guildID: guildID,
		files:   resty.New().SetTimeout(2 * time.Minute),
	}
}

func (g *Guild) CreateTicketChannel(ctx context.Context, spec ticket.ChannelSpec) (string, error) {
	ch, err := g.s.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites(g.guildID, spec),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: create channel %s: %v", errs.ErrExternal, spec.Name, err)
	}
	return ch.ID, nil
}

func (g *Guild) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := g.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: delete channel %s: %v", errs.ErrExternal, channelID, err)
	}
	return nil
}

// Send скачивает файлы сообщения и прикладывает их; слишком большие вложения → errs.ErrPayloadTooLarge.
func (g *Guild) Send(ctx context.Context, channelID string, msg ticket.OutboundMessage) (string, error) {
	data := messageSend(msg)
	for _, f := range msg.Files {
		resp, err := g.files.R().SetContext(ctx).Get(f.URL)
		if err != nil {
			return "", fmt.Errorf("%w: fetch %s: %v", errs.ErrExternal, f.Name, err)
		}
		if resp.IsError() {
			return "", fmt.Errorf("%w: fetch %s: status %d", errs.ErrExternal, f.Name, resp.StatusCode())
		}
		data.Files = append(data.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.MIME,
			Reader:      bytes.NewReader(resp.Body()),
		})
	}
	m, err := g.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		if isTooLarge(err) {
			return "", fmt.Errorf("%w: %v", errs.ErrPayloadTooLarge, err)
		}
		return "", fmt.Errorf("%w: send to %s: %v", errs.ErrExternal, channelID, err)
	}
	return m.ID, nil
}

func (g *Guild) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := g.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: delete message %s: %v", errs.ErrExternal, messageID, err)
	}
	return nil
}

func (g *Guild) SendDirect(ctx context.Context, userID string, msg ticket.OutboundMessage) error {
	dm, err := g.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: open dm %s: %v", errs.ErrExternal, userID, err)
	}
	_, err = g.Send(ctx, dm.ID, msg)
	return err
}

// parentOf — категория канала (из кэша сессии, иначе REST).
func (g *Guild) parentOf(channelID string) string {
	if ch, err := g.s.State.Channel(channelID); err == nil {
		return ch.ParentID
	}
	if ch, err := g.s.Channel(channelID); err == nil {
		return ch.ParentID
	}
	return ""
}

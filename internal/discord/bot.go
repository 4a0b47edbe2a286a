package discord

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/psds-microservice/ticket-bridge/internal/relay"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

// Dispatcher — relay.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev relay.Event) error
}

// Bot — шлюз Discord: переводит события сессии в relay.Event.
type Bot struct {
	s       *discordgo.Session
	guild   *Guild
	guildID string
	d       Dispatcher
	timeout time.Duration
}

// NewSession создаёт сессию бота (подключение — в Bot.Run).
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return s, nil
}

func NewBot(s *discordgo.Session, guild *Guild, d Dispatcher) *Bot {
	return &Bot{s: s, guild: guild, guildID: guild.guildID, d: d, timeout: 5 * time.Minute}
}

func commands() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	mute := int64(discordgo.PermissionVoiceMuteMembers)
	return []*discordgo.ApplicationCommand{
		{
			Name:                     relay.CommandAdminPanel.Name(),
			Description:              "Создаёт сообщение с кнопкой заявки в администраторы",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionChannel, Name: "channel",
				Description: "Канал, куда отправить сообщение о наборе администраторов", Required: true,
			}},
		},
		{
			Name:                     relay.CommandTicketPanel.Name(),
			Description:              "Создаёт сообщение с кнопками для разных тикетов",
			DefaultMemberPermissions: &admin,
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionChannel, Name: "channel",
				Description: "Канал, куда отправить панель тикетов", Required: true,
			}},
		},
		{
			Name:                     relay.CommandClose.Name(),
			Description:              "Закрывает тикет",
			DefaultMemberPermissions: &mute,
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionString, Name: "reason",
				Description: "Причина закрытия тикета",
			}},
		},
	}
}

// Run подключается, регистрирует команды и работает до отмены ctx.
func (b *Bot) Run(ctx context.Context) error {
	b.s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Printf("discord: logged in as %s", userLabel(r.User))
	})
	b.s.AddHandler(b.onMessage)
	b.s.AddHandler(b.onInteraction)

	if err := b.s.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	defer b.s.Close()

	if _, err := b.s.ApplicationCommandBulkOverwrite(b.s.State.User.ID, b.guildID, commands()); err != nil {
		log.Printf("discord: register commands: %v", err)
	}

	<-ctx.Done()
	return nil
}

func (b *Bot) dispatch(ev relay.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.d.Dispatch(ctx, ev); err != nil {
		log.Printf("discord: %T: %v", ev, err)
	}
}

func (b *Bot) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" {
		return
	}
	label := userLabel(m.Author)
	b.dispatch(relay.NewMessage{
		From:         ticket.PlatformDiscord,
		Key:          m.ChannelID,
		SenderLabel:  label,
		SenderUserID: m.Author.ID,
		Text:         m.Content,
		Attachments:  sources(m.Attachments, label),
		FromBot:      m.Author.Bot,
	})
}

func (b *Bot) actor(i *discordgo.InteractionCreate) relay.Actor {
	a := relay.Actor{ChannelID: i.ChannelID, ParentID: b.guild.parentOf(i.ChannelID)}
	if i.Member != nil {
		a.UserID = i.Member.User.ID
		a.UserLabel = userLabel(i.Member.User)
		a.RoleIDs = i.Member.Roles
	} else if i.User != nil {
		a.UserID = i.User.ID
		a.UserLabel = userLabel(i.User)
	}
	return a
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	r := &responder{s: s, i: i.Interaction}
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		b.dispatch(relay.ButtonClicked{
			Actor:   b.actor(i),
			Button:  relay.ParseButton(i.MessageComponentData().CustomID),
			Respond: r,
		})
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		b.dispatch(relay.ModalSubmitted{
			Actor:   b.actor(i),
			Form:    relay.ParseForm(data.CustomID),
			Fields:  modalFields(data),
			Respond: r,
		})
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		ev := relay.SlashCommand{Actor: b.actor(i), Command: relay.ParseCommand(data.Name), Respond: r}
		for _, opt := range data.Options {
			switch opt.Name {
			case "channel":
				if id, ok := opt.Value.(string); ok {
					ev.TargetChannelID = id
				}
			case "reason":
				ev.Reason = opt.StringValue()
			}
		}
		b.dispatch(ev)
	}
}

// responder отвечает на взаимодействие; все ответы эфемерные.
type responder struct {
	s *discordgo.Session
	i *discordgo.Interaction
}

func (r *responder) respond(ctx context.Context, resp *discordgo.InteractionResponse) error {
	if err := r.s.InteractionRespond(r.i, resp, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: interaction respond: %w", err)
	}
	return nil
}

func (r *responder) Reply(ctx context.Context, text string) error {
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (r *responder) Confirm(ctx context.Context, text string, button ticket.Button) error {
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    text,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: components([]ticket.Button{button}),
		},
	})
}

func (r *responder) ShowModal(ctx context.Context, m relay.Modal) error {
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: modalData(m),
	})
}

func (r *responder) Defer(ctx context.Context) error {
	return r.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (r *responder) Edit(ctx context.Context, text string) error {
	if _, err := r.s.InteractionResponseEdit(r.i, &discordgo.WebhookEdit{Content: &text}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit response: %w", err)
	}
	return nil
}

package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/relay"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

// codeRequestEntityTooLarge — код ошибки Discord API для слишком больших вложений.
const codeRequestEntityTooLarge = 40005

const (
	memberPerms = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionAttachFiles |
		discordgo.PermissionEmbedLinks |
		discordgo.PermissionAddReactions |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionUseExternalEmojis
	staffPerms = memberPerms |
		discordgo.PermissionManageChannels |
		discordgo.PermissionManageMessages
)

// overwrites: @everyone (id роли = id гильдии) не видит канал, автор — участник, роли персонала — модераторы.
func overwrites(guildID string, spec ticket.ChannelSpec) []*discordgo.PermissionOverwrite {
	out := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	if spec.CreatorUserID != "" {
		out = append(out, &discordgo.PermissionOverwrite{
			ID: spec.CreatorUserID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberPerms,
		})
	}
	for _, id := range spec.StaffRoleIDs {
		out = append(out, &discordgo.PermissionOverwrite{
			ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: staffPerms,
		})
	}
	return out
}

func embed(e *ticket.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Author != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.Author, IconURL: e.AuthorIcon}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func buttonStyle(s ticket.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case ticket.ButtonSecondary:
		return discordgo.SecondaryButton
	case ticket.ButtonSuccess:
		return discordgo.SuccessButton
	case ticket.ButtonDanger:
		return discordgo.DangerButton
	}
	return discordgo.PrimaryButton
}

func closeControls() []ticket.Button {
	return []ticket.Button{
		{ID: relay.ButtonClose.CustomID(), Label: "Закрыть тикет", Style: ticket.ButtonDanger},
		{ID: relay.ButtonCloseWithReason.CustomID(), Label: "Закрыть с причиной", Style: ticket.ButtonSecondary},
	}
}

// components раскладывает кнопки по строкам (не больше 5 в строке).
func components(buttons []ticket.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var cur []discordgo.MessageComponent
	row := -1
	flush := func() {
		if len(cur) > 0 {
			rows = append(rows, discordgo.ActionsRow{Components: cur})
		}
		cur = nil
	}
	for _, b := range buttons {
		if b.Row != row || len(cur) == 5 {
			flush()
			row = b.Row
		}
		cur = append(cur, discordgo.Button{Label: b.Label, Style: buttonStyle(b.Style), CustomID: b.ID})
	}
	flush()
	return rows
}

// messageSend собирает сообщение без файлов; файлы докладывает Guild.Send.
func messageSend(msg ticket.OutboundMessage) *discordgo.MessageSend {
	out := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if msg.MentionRoles {
		out.AllowedMentions.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles}
	}
	if msg.Embed != nil {
		out.Embeds = []*discordgo.MessageEmbed{embed(msg.Embed)}
	}
	buttons := msg.Buttons
	if msg.CloseControls {
		buttons = append(append([]ticket.Button(nil), buttons...), closeControls()...)
	}
	if len(buttons) > 0 {
		out.Components = components(buttons)
	}
	return out
}

func modalData(m relay.Modal) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{CustomID: m.ID, Title: m.Title}
	for _, in := range m.Inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		data.Components = append(data.Components, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{CustomID: in.ID, Label: in.Label, Style: style, Required: in.Required},
		}})
	}
	return data
}

// modalFields достаёт значения полей из отправленной формы.
func modalFields(data discordgo.ModalSubmitInteractionData) map[string]string {
	out := map[string]string{}
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				out[in.CustomID] = in.Value
			}
		}
	}
	return out
}

func sources(atts []*discordgo.MessageAttachment, sender string) []attachment.Source {
	out := make([]attachment.Source, 0, len(atts))
	for _, a := range atts {
		src := attachment.Source{FileID: a.ID, URL: a.URL, MIME: a.ContentType, Name: a.Filename}
		if src.Kind() == attachment.KindVideo {
			src.Title = "Видео от " + sender
			src.Description = "Загружено через бота"
		}
		out = append(out, src)
	}
	return out
}

func isTooLarge(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil && rest.Message.Code == codeRequestEntityTooLarge {
		return true
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusRequestEntityTooLarge
}

func userLabel(u *discordgo.User) string {
	if u == nil {
		return ""
	}
	if u.Discriminator != "" && u.Discriminator != "0" {
		return u.Username + "#" + u.Discriminator
	}
	return u.Username
}

package ticket

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/model"
)

const (
	colorNeutral = 0x2f3136
	colorClosed  = 0x57f287

	brandName = "Русский Народный Сервер"
	brandIcon = "https://media.discordapp.net/attachments/1179711462197968896/1271584403826540705/0000.png"

	adminFormURL = "https://docs.google.com/forms/d/e/1FAIpQLSdG3su88ADyX0FZKg_yJ0BakZXz-kcaiNe32cb7urUopWulIw/viewform"

	// ClosedNotice — уведомление в Telegram после закрытия.
	ClosedNotice = "Ваш тикет закрыт."
	noReason     = "Не указана"
	unknown      = "Неизвестно"

	// формат toLocaleString("ru-RU")
	timeLayout = "02.01.2006, 15:04:05"
)

// ReturnRoleChecklist — инструкция для тикета "Вернуть пилота".
const ReturnRoleChecklist = "**Важно:** Сброс скорости осуществлять с помощью манёвра j-hook (торможение, поднятием носа вверх не засчитывается)\n\n" +
	"1. Зайти на тренировочную карту (Training -> Jensen's Range)\n" +
	"2. Поменять карту, введя в консоль (буква ё): AdminChangeLayer yehorivka_aas_v1\n" +
	"2.1. (опционально) Ускорить стартовую фазу, введя в консоль: AdminSlomo 100\n" +
	"2.2. (опционально) Вернуть скорость на обычную, введя в консоль: AdminSlomo 1\n" +
	"3. Заспавнить желаемый вертолёт (список команд для ввода в консоль внизу)\n" +
	"4. Поставить метку на карте, куда планируете приземлиться\n" +
	"5. Приземлиться на указанное место\n" +
	"6. Поставить новую метку в другом месте над лесом/зданиями\n" +
	"7. Зависнуть на высоте менее 30 метров, имитировать выгрузку ресурсов\n" +
	"8. Посадить вертолёт на хелипад на мейне\n\n" +
	"Видео можно залить на YouTube/Яндекс Диск/Google Диск или другой общедоступный ресурс и отправить сюда ссылку\n" +
	"Пример выполнения: https://youtu.be/pk7sWzJMMQs\n\n" +
	"**Команды для спавна вертолёта:**\n" +
	"```\n" +
	"верт   | команда\n" +
	"------------------------------------------------------------------\n" +
	"UH-60M | AdminCreateVehicle /Game/Vehicles/UH60M/BP_UH60.BP_UH60_C\n" +
	"UH-1Y  | AdminCreateVehicle /Game/Vehicles/UH1Y/BP_UH1Y.BP_UH1Y_C\n" +
	"SA330  | AdminCreateVehicle /Game/Vehicles/SA330/BP_SA330.BP_SA330_C\n" +
	"MRH-90 | AdminCreateVehicle /Game/Vehicles/MRH90/BP_MRH90_Mag58.BP_MRH90_Mag58_C\n" +
	"CH-146 | AdminCreateVehicle /Game/Vehicles/CH146/BP_CH146.BP_CH146_C\n" +
	"Z-8G   | AdminCreateVehicle /Game/Vehicles/Z8G/BP_Z8G.BP_Z8G_C\n" +
	"```"

// Supplement — дополнительный текст, который вызывающий публикует после создания тикета.
func Supplement(t model.TicketType) string {
	if t == model.TicketTypeReturnRole {
		return ReturnRoleChecklist
	}
	return ""
}

// AppealAdminNote — сообщение о том, какой администратор рассмотрит апелляцию.
func AppealAdminNote(discordID string) string {
	return fmt.Sprintf("Администратор <@%s> рассмотрит ваше обращение!", discordID)
}

func channelName(id int64, fromTelegram bool) string {
	name := "обращение-" + strconv.FormatInt(id, 10)
	if fromTelegram {
		name += "-tg"
	}
	return name
}

func autoReply(t model.TicketType, who string) string {
	switch t {
	case model.TicketTypeReport:
		return fmt.Sprintf("Здравствуйте, %s! Пожалуйста, предоставьте **видео или скриншоты** нарушения, чтобы мы могли помочь.", who)
	case model.TicketTypeAppealBan:
		return fmt.Sprintf("Здравствуйте, %s!", who)
	case model.TicketTypeReturnRole:
		return fmt.Sprintf("Здравствуйте, %s! Вам заблокировали кит пилота в связи с недостатком навыков пилотирования.", who)
	case model.TicketTypeQuestion:
		return fmt.Sprintf("Здравствуйте, %s! Опишите свой вопрос, и мы постараемся помочь вам в ближайшее время.", who)
	case model.TicketTypeAdminApplication:
		return fmt.Sprintf("Здравствуйте, %s! Пока наш админ еще не успел взглянуть на ваш запрос, можем попросить вас заполнить быструю анкету %s", who, adminFormURL)
	}
	return fmt.Sprintf("Здравствуйте, %s! Спасибо за обращение.", who)
}

func mention(userID string) string { return "<@" + userID + ">" }

func roleMentions(roleIDs []string) string {
	parts := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		parts = append(parts, "<@&"+id+">")
	}
	return strings.Join(parts, " ")
}

func pingText(roleIDs []string, t model.TicketType) string {
	return fmt.Sprintf("%s У вас новый тикет \"%s\"!", roleMentions(roleIDs), t.Title())
}

// summaryEmbed — ответы анкеты в порядке формы; неизвестные поля идут следом по алфавиту.
func summaryEmbed(req CreateRequest) *Embed {
	e := &Embed{Color: colorNeutral}
	fromTelegram := req.OriginChatID != ""
	if fromTelegram {
		e.Title = "Тикет из Telegram"
		e.Description = fmt.Sprintf("Пользователь: %s\nТип: %s", req.CreatorLabel, req.Type.Title())
	} else {
		e.Title = "Тикет: " + req.Type.Title()
	}

	seen := map[string]bool{}
	add := func(field, value string) {
		seen[field] = true
		if strings.TrimSpace(value) == "" {
			if !fromTelegram {
				return
			}
			value = "—"
		}
		e.Fields = append(e.Fields, EmbedField{Name: model.FieldLabel(req.Type, field), Value: value})
	}
	for _, q := range model.Questions(req.Type) {
		if v, ok := req.Answers[q.Field]; ok {
			add(q.Field, v)
		}
	}
	var rest []string
	for k := range req.Answers {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k, req.Answers[k])
	}
	return e
}

func closureEmbed(t *model.Ticket, closerID, reason string, loc *time.Location) *Embed {
	if strings.TrimSpace(reason) == "" {
		reason = noReason
	}
	opened := unknown
	if t.CreatorUserID != nil && *t.CreatorUserID != "" {
		opened = mention(*t.CreatorUserID)
	}
	created := unknown
	if !t.CreatedAt.IsZero() {
		created = t.CreatedAt.In(loc).Format(timeLayout)
	}
	closedAt := time.Now()
	if t.ClosedAt != nil {
		closedAt = *t.ClosedAt
	}
	return &Embed{
		Author:     brandName,
		AuthorIcon: brandIcon,
		Title:      "Тикет закрыт!",
		Color:      colorClosed,
		Fields: []EmbedField{
			{Name: "Номер тикета", Value: strconv.FormatInt(t.ID, 10), Inline: true},
			{Name: "Открыл:", Value: opened, Inline: true},
			{Name: "Закрыл:", Value: mention(closerID), Inline: true},
			{Name: "Дата создания:", Value: created, Inline: true},
			{Name: "Причина", Value: reason, Inline: true},
		},
		Footer: "Закрыто: " + closedAt.In(loc).Format(timeLayout),
	}
}

// relayPrefix — метка отправителя, чтобы пересланное не путали с родным сообщением.
func relayPrefix(from Platform, sender string) string {
	switch from {
	case PlatformTelegram:
		return "[Telegram] " + sender + ": "
	default:
		return "[Discord] " + sender + ": "
	}
}

var emptyRelay = regexp.MustCompile(`^\[(Discord|Telegram)\] [^:]*:\s*$`)

// isEmptyRelay — текст состоит только из префикса без содержимого.
func isEmptyRelay(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || emptyRelay.MatchString(text)
}

func moscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

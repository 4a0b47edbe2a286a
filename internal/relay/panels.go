package relay

import (
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
)

const panelTitle = "Связь с администрацией"

const ticketPanelText = `Возникла сложная ситуация? Есть предложение или идея? Мы поможем вам по любому вопросу, но просим соблюдать правила подачи заявок.
Также рекомендуем ознакомиться с каналом ⁠https://discord.com/channels/735515208348598292/1204124602230374471, где описаны основные правила поведения на сервере.

🔹 Для вопросов и предложений по серверу:
Ограничений нет, можно подавать в свободной форме.

🔹 Для жалоб на игроков:
Укажите свой никнейм, ник нарушителя и других причастных к инциденту, время и описание ситуации, а также доказательства (видео или скриншоты).

❌ Жалобы без доказательств или отправленные слишком поздно (более 24 часов после инцидента) могут не рассматриваться.`

const adminPanelText = `Набор в администраторы сервера!
Русский народный сервер приглашает вас стать частью нашей захватывающей команды администраторов!

Если вы обладаете страстью к играм, обширным опытом и чувством ответственности, то мы именно вас ищем! Вместе мы создадим уникальное игровое пространство, где каждый игрок будет чувствовать себя как дома.

Требования:

● Ваш возраст больше 21 года
● Время проведенное на Русском Народном Сервере от 500 и более часов
● Ответственный

Что вас ждет:

● Участие в создании и управлении уникальным игровым опытом.
● Возможность внести свой вклад в развитие сервера.
● Общение с разнообразным сообществом и возможность оставить свой след в истории сервера.

Если вы готовы к вызову, если вы настоящий геймер и лидер по душе, присоединяйтесь к нам! Помогите нам сделать наш сервер лучшим местом для игры и веселья. Ваша страсть и профессионализм – ключ к успеху на Русском Народном Сервере!`

func ticketPanel() ticket.OutboundMessage {
	return ticket.OutboundMessage{
		Embed: &ticket.Embed{Title: panelTitle, Description: ticketPanelText, Color: 0x2f3136},
		Buttons: []ticket.Button{
			{ID: ButtonReport.CustomID(), Label: "Зарепортить", Style: ticket.ButtonDanger},
			{ID: ButtonAppealBan.CustomID(), Label: "Оспорить бан", Style: ticket.ButtonSecondary},
			{ID: ButtonReturnRole.CustomID(), Label: "Вернуть пилота", Style: ticket.ButtonSuccess},
			{ID: ButtonQuestion.CustomID(), Label: "Задать вопрос", Style: ticket.ButtonPrimary},
		},
	}
}

func adminPanel() ticket.OutboundMessage {
	return ticket.OutboundMessage{
		Embed: &ticket.Embed{Title: panelTitle, Description: adminPanelText, Color: 0x2f3136},
		Buttons: []ticket.Button{
			{ID: ButtonAdminApplication.CustomID(), Label: "Заявка в администраторы", Style: ticket.ButtonDanger},
		},
	}
}

// telegramMenu — меню выбора типа в Telegram: две кнопки в первой строке, одна во второй.
func telegramMenu() ticket.OutboundMessage {
	return ticket.OutboundMessage{
		Text: "Выберите тип тикета:",
		Buttons: []ticket.Button{
			{ID: ButtonReport.CustomID(), Label: "Зарепортить", Row: 0},
			{ID: ButtonAppealBan.CustomID(), Label: "Оспорить бан", Row: 0},
			{ID: ButtonReturnRole.CustomID(), Label: "Вернуть пилота", Row: 1},
		},
	}
}

// ticketModal строит форму из анкеты типа.
func ticketModal(t model.TicketType) Modal {
	m := Modal{ID: formFor(t).CustomID(), Title: t.Title()}
	for _, q := range model.Questions(t) {
		m.Inputs = append(m.Inputs, Input{ID: q.Field, Label: q.Label, Paragraph: q.Paragraph, Required: true})
	}
	return m
}

func closeReasonModal() Modal {
	return Modal{
		ID:    FormCloseReason.CustomID(),
		Title: "Закрытие тикета с причиной",
		Inputs: []Input{
			{ID: "reason_input", Label: "Введите причину закрытия тикета", Paragraph: true, Required: true},
		},
	}
}

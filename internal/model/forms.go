package model

// Question — одно поле анкеты: ключ ответа, подпись в Discord-форме и вопрос в Telegram.
type Question struct {
	Field     string
	Label     string
	Prompt    string
	Paragraph bool
}

var (
	qNickname = Question{Field: "nickname", Label: "Ваш игровой никнейм", Prompt: "Введите ваш игровой никнейм:"}
	qSteam    = Question{Field: "steam", Label: "SteamID64 или ссылка на профиль Steam", Prompt: "Введите SteamID64 или ссылку на профиль Steam (если есть):"}
)

var questions = map[TicketType][]Question{
	TicketTypeReport: {
		qNickname,
		qSteam,
		{Field: "offender", Label: "Никнейм нарушителя", Prompt: "Введите никнейм нарушителя:"},
		{Field: "server", Label: "На каком сервере произошло нарушение?", Prompt: "Введите название сервера:"},
		{Field: "details", Label: "Подробно опишите, что произошло", Prompt: "Введите подробное описание нарушения:", Paragraph: true},
	},
	TicketTypeAppealBan: {
		qNickname,
		qSteam,
		{Field: "reason", Label: "Почему вы считаете, что бан нужно изменить?", Prompt: "Введите причину обжалования бана:", Paragraph: true},
	},
	TicketTypeReturnRole: {
		qNickname,
		qSteam,
	},
	TicketTypeAdminApplication: {
		qNickname,
		qSteam,
		{Field: "age", Label: "Возраст", Prompt: "Введите ваш возраст:"},
		{Field: "experience", Label: "Опыт администрирования", Prompt: "Опишите ваш опыт администрирования:", Paragraph: true},
		{Field: "reason", Label: "Почему наш сервер?", Prompt: "Почему наш сервер?", Paragraph: true},
	},
}

// Questions returns the fixed ordered question set for t (nil for types without a form).
func Questions(t TicketType) []Question {
	return questions[t]
}

// FieldLabel возвращает подпись поля для типа t или сам ключ, если поле неизвестно.
func FieldLabel(t TicketType, field string) string {
	for _, q := range questions[t] {
		if q.Field == field {
			return q.Label
		}
	}
	return field
}

package model

import (
	"fmt"
	"sort"
	"strings"
)

// TicketType — закрытый набор типов тикетов.
type TicketType string

const (
	TicketTypeReport           TicketType = "report"
	TicketTypeAppealBan        TicketType = "appeal_ban"
	TicketTypeReturnRole       TicketType = "return_role"
	TicketTypeQuestion         TicketType = "question"
	TicketTypeAdminApplication TicketType = "admin_application"
	TicketTypeImported         TicketType = "imported"
)

// TicketTypes lists every known type in menu order.
var TicketTypes = []TicketType{
	TicketTypeReport,
	TicketTypeAppealBan,
	TicketTypeReturnRole,
	TicketTypeQuestion,
	TicketTypeAdminApplication,
	TicketTypeImported,
}

func (t TicketType) String() string { return string(t) }

// Title — заголовок типа для пользователей (эмбеды, уведомления).
func (t TicketType) Title() string {
	switch t {
	case TicketTypeReport:
		return "Жалоба"
	case TicketTypeAppealBan:
		return "Оспорить бан"
	case TicketTypeReturnRole:
		return "Вернуть пилота"
	case TicketTypeQuestion:
		return "Задать вопрос"
	case TicketTypeAdminApplication:
		return "Заявка на администратора"
	case TicketTypeImported:
		return "Импорт"
	}
	return string(t)
}

// Valid reports whether t is one of TicketTypes.
func (t TicketType) Valid() bool {
	for _, v := range TicketTypes {
		if v == t {
			return true
		}
	}
	return false
}

// legacyTypes — значения ticketType, встречающиеся в старых документах бота.
var legacyTypes = map[string]TicketType{
	"report_ticket":       TicketTypeReport,
	"unban_ticket":        TicketTypeAppealBan,
	"return_pilot_ticket": TicketTypeReturnRole,
	"ask_question_ticket": TicketTypeQuestion,
	"admin_ticket":        TicketTypeAdminApplication,
}

// ParseTicketType принимает каноническое значение, русский заголовок или legacy-ключ.
func ParseTicketType(s string) (TicketType, error) {
	s = strings.TrimSpace(s)
	if t := TicketType(s); t.Valid() {
		return t, nil
	}
	if t, ok := legacyTypes[s]; ok {
		return t, nil
	}
	for _, t := range TicketTypes {
		if t.Title() == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown ticket type %q", s)
}

// StoredValues — все значения ticketType, под которыми тип лежит в базе: каноническое,
// русский заголовок и legacy-ключи.
func (t TicketType) StoredValues() []string {
	out := []string{string(t), t.Title()}
	var legacy []string
	for k, v := range legacyTypes {
		if v == t {
			legacy = append(legacy, k)
		}
	}
	sort.Strings(legacy)
	return append(out, legacy...)
}

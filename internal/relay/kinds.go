package relay

import "github.com/psds-microservice/ticket-bridge/internal/model"

// ButtonKind — закрытый набор кнопок бота (Discord и Telegram-меню).
type ButtonKind int

const (
	ButtonUnknown ButtonKind = iota
	ButtonReport
	ButtonAppealBan
	ButtonReturnRole
	ButtonQuestion
	ButtonAdminApplication
	ButtonClose
	ButtonConfirmClose
	ButtonCloseWithReason
)

var buttonIDs = map[ButtonKind]string{
	ButtonReport:           "report_ticket",
	ButtonAppealBan:        "unban_ticket",
	ButtonReturnRole:       "return_pilot_ticket",
	ButtonQuestion:         "ask_question_ticket",
	ButtonAdminApplication: "admin_ticket",
	ButtonClose:            "close_ticket",
	ButtonConfirmClose:     "confirm_close_ticket",
	ButtonCloseWithReason:  "close_ticket_with_reason",
}

func (b ButtonKind) CustomID() string { return buttonIDs[b] }

func ParseButton(id string) ButtonKind {
	for k, v := range buttonIDs {
		if v == id {
			return k
		}
	}
	return ButtonUnknown
}

// TicketType — тип тикета, который открывает кнопка.
func (b ButtonKind) TicketType() (model.TicketType, bool) {
	switch b {
	case ButtonReport:
		return model.TicketTypeReport, true
	case ButtonAppealBan:
		return model.TicketTypeAppealBan, true
	case ButtonReturnRole:
		return model.TicketTypeReturnRole, true
	case ButtonQuestion:
		return model.TicketTypeQuestion, true
	case ButtonAdminApplication:
		return model.TicketTypeAdminApplication, true
	}
	return "", false
}

// FormKind — модальные формы Discord.
type FormKind int

const (
	FormUnknown FormKind = iota
	FormReport
	FormAppealBan
	FormReturnRole
	FormAdminApplication
	FormCloseReason
)

var formIDs = map[FormKind]string{
	FormReport:           "report_ticket_modal",
	FormAppealBan:        "unban_ticket_modal",
	FormReturnRole:       "return_pilot_ticket_modal",
	FormAdminApplication: "admin_modal",
	FormCloseReason:      "modal_close_with_reason",
}

func (f FormKind) CustomID() string { return formIDs[f] }

func ParseForm(id string) FormKind {
	for k, v := range formIDs {
		if v == id {
			return k
		}
	}
	return FormUnknown
}

func (f FormKind) TicketType() (model.TicketType, bool) {
	switch f {
	case FormReport:
		return model.TicketTypeReport, true
	case FormAppealBan:
		return model.TicketTypeAppealBan, true
	case FormReturnRole:
		return model.TicketTypeReturnRole, true
	case FormAdminApplication:
		return model.TicketTypeAdminApplication, true
	}
	return "", false
}

func formFor(t model.TicketType) FormKind {
	switch t {
	case model.TicketTypeReport:
		return FormReport
	case model.TicketTypeAppealBan:
		return FormAppealBan
	case model.TicketTypeReturnRole:
		return FormReturnRole
	case model.TicketTypeAdminApplication:
		return FormAdminApplication
	}
	return FormUnknown
}

// CommandKind — слэш-команды.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandAdminPanel
	CommandTicketPanel
	CommandClose
)

var commandNames = map[CommandKind]string{
	CommandAdminPanel:  "adminpanel",
	CommandTicketPanel: "ticketpanel",
	CommandClose:       "close",
}

func (c CommandKind) Name() string { return commandNames[c] }

func ParseCommand(name string) CommandKind {
	for k, v := range commandNames {
		if v == name {
			return k
		}
	}
	return CommandUnknown
}

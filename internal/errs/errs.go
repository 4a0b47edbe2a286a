package errs

import "errors"

var (
	// ErrTicketNotFound — нет открытого тикета для канала/чата/id.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrPermissionDenied — у закрывающего нет роли модератора.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPersistence — запись в хранилище не удалась.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation — некорректный ввод (id, SteamID и т.п.).
	ErrValidation = errors.New("validation failure")
	// ErrExternal — ошибка внешнего API (Discord, Telegram, VK).
	ErrExternal = errors.New("external service failure")
	// ErrPayloadTooLarge — платформа отклонила сообщение из-за размера вложений.
	ErrPayloadTooLarge = errors.New("payload too large")
)

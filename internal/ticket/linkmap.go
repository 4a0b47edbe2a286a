package ticket

import "sync"

// LinkMap — кэш связей чат Telegram ↔ канал Discord. Источник правды — хранилище.
type LinkMap struct {
	mu        sync.RWMutex
	byChat    map[string]string
	byChannel map[string]string
}

func NewLinkMap() *LinkMap {
	return &LinkMap{
		byChat:    make(map[string]string),
		byChannel: make(map[string]string),
	}
}

// Set связывает чат с каналом, заменяя прежнюю связь чата.
func (l *LinkMap) Set(chatID, channelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.byChat[chatID]; ok {
		delete(l.byChannel, old)
	}
	l.byChat[chatID] = channelID
	l.byChannel[channelID] = chatID
}

func (l *LinkMap) ChannelFor(chatID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ch, ok := l.byChat[chatID]
	return ch, ok
}

func (l *LinkMap) ChatFor(channelID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chat, ok := l.byChannel[channelID]
	return chat, ok
}

// RemoveChannel убирает связь канала; связь чата удаляется, только если она ведёт в этот канал.
func (l *LinkMap) RemoveChannel(channelID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	chat, ok := l.byChannel[channelID]
	if !ok {
		return
	}
	delete(l.byChannel, channelID)
	if l.byChat[chat] == channelID {
		delete(l.byChat, chat)
	}
}

func (l *LinkMap) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byChat)
}

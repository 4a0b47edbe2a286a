// Package servicetest — хранилище тикетов в памяти для тестов пакетов над service.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

var _ service.TicketServicer = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	counters map[string]int64
	tickets  map[int64]*model.Ticket

	// InsertErr / AppendErr подменяют ошибки записи.
	InsertErr error
	AppendErr error
}

func New() *Store {
	return &Store{counters: map[string]int64{}, tickets: map[int64]*model.Ticket{}}
}

func (s *Store) NextCounterValue(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

func (s *Store) EnsureCounterAtLeast(_ context.Context, name string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[name] < v {
		s.counters[name] = v
	}
	return nil
}

func (s *Store) CounterValue(_ context.Context, name string) (int64, error) {
	return s.Counter(name), nil
}

func (s *Store) Counter(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

func (s *Store) Insert(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return fmt.Errorf("%w: %v", errs.ErrPersistence, s.InsertErr)
	}
	if _, ok := s.tickets[t.ID]; ok {
		return fmt.Errorf("%w: duplicate id %d", errs.ErrPersistence, t.ID)
	}
	s.tickets[t.ID] = clone(t)
	return nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	return clone(t), nil
}

func (s *Store) List(_ context.Context, f service.ListFilter, limit, offset int) ([]model.Ticket, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.sorted() {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Open != nil && t.IsOpen() != *f.Open {
			continue
		}
		if f.CreatorUserID != "" && model.Deref(t.CreatorUserID, "") != f.CreatorUserID {
			continue
		}
		c := clone(t)
		c.Messages = nil
		out = append(out, *c)
	}
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *Store) FindOpenByChannel(_ context.Context, channelID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sorted() {
		if t.IsOpen() && t.DestinationChannelID == channelID {
			return clone(t), nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (s *Store) FindOpenByChatID(_ context.Context, chatID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IsOpen() && model.Deref(all[i].OriginChatID, "") == chatID {
			return clone(all[i]), nil
		}
	}
	return nil, errs.ErrTicketNotFound
}

func (s *Store) FindAllOpen(_ context.Context) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.sorted() {
		if t.IsOpen() {
			out = append(out, *clone(t))
		}
	}
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, ticketID int64, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return fmt.Errorf("%w: %v", errs.ErrPersistence, s.AppendErr)
	}
	t, ok := s.tickets[ticketID]
	if !ok {
		return errs.ErrTicketNotFound
	}
	m.TicketID = ticketID
	m.ID = int64(len(t.Messages) + 1)
	t.Messages = append(t.Messages, m)
	return nil
}

func (s *Store) Close(_ context.Context, id int64, closerID string, at time.Time) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || !t.IsOpen() {
		return nil, errs.ErrTicketNotFound
	}
	t.ClosedAt = &at
	t.ClosedByUserID = model.StringPtr(closerID)
	return clone(t), nil
}

func (s *Store) sorted() []*model.Ticket {
	out := make([]*model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(t *model.Ticket) *model.Ticket {
	c := *t
	c.Answers = model.Answers{}
	for k, v := range t.Answers {
		c.Answers[k] = v
	}
	c.Messages = append([]model.Message(nil), t.Messages...)
	return &c
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"gorm.io/gorm"
)

// TicketServicer — хранилище тикетов и счётчиков (postgres или mongo).
type TicketServicer interface {
	NextCounterValue(ctx context.Context, name string) (int64, error)
	EnsureCounterAtLeast(ctx context.Context, name string, v int64) error
	// CounterValue — последнее выданное значение (0, если счётчика ещё нет).
	CounterValue(ctx context.Context, name string) (int64, error)

	Insert(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id int64) (*model.Ticket, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]model.Ticket, int64, error)
	FindOpenByChannel(ctx context.Context, channelID string) (*model.Ticket, error)
	FindOpenByChatID(ctx context.Context, chatID string) (*model.Ticket, error)
	FindAllOpen(ctx context.Context) ([]model.Ticket, error)

	AppendMessage(ctx context.Context, ticketID int64, m model.Message) error
	Close(ctx context.Context, id int64, closerID string, at time.Time) (*model.Ticket, error)
}

// ListFilter — фильтры выборки для API транскриптов. Пустые поля не фильтруют.
type ListFilter struct {
	Type          model.TicketType
	Open          *bool
	CreatorUserID string
}

type TicketService struct {
	db *gorm.DB
}

func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

const nextCounterSQL = `INSERT INTO counters (name, seq) VALUES (?, 1)
ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
RETURNING seq`

// NextCounterValue атомарно увеличивает счётчик и возвращает новое значение.
func (s *TicketService) NextCounterValue(ctx context.Context, name string) (int64, error) {
	var seq int64
	if err := s.db.WithContext(ctx).Raw(nextCounterSQL, name).Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("%w: next counter %s: %v", errs.ErrPersistence, name, err)
	}
	if seq == 0 {
		return 0, fmt.Errorf("%w: counter %s returned no value", errs.ErrPersistence, name)
	}
	return seq, nil
}

const ensureCounterSQL = `INSERT INTO counters (name, seq) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET seq = GREATEST(counters.seq, EXCLUDED.seq)`

// EnsureCounterAtLeast поднимает счётчик до v, если он меньше (используется импортом).
func (s *TicketService) EnsureCounterAtLeast(ctx context.Context, name string, v int64) error {
	if err := s.db.WithContext(ctx).Exec(ensureCounterSQL, name, v).Error; err != nil {
		return fmt.Errorf("%w: ensure counter %s: %v", errs.ErrPersistence, name, err)
	}
	return nil
}

func (s *TicketService) CounterValue(ctx context.Context, name string) (int64, error) {
	var c model.Counter
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read counter %s: %v", errs.ErrPersistence, name, err)
	}
	return c.Seq, nil
}

// Insert сохраняет тикет вместе с уже имеющимися сообщениями одной транзакцией.
func (s *TicketService) Insert(ctx context.Context, t *model.Ticket) error {
	if t.Answers == nil {
		t.Answers = model.Answers{}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})
	if err != nil {
		return fmt.Errorf("%w: insert ticket %d: %v", errs.ErrPersistence, t.ID, err)
	}
	return nil
}

func (s *TicketService) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("ticket_messages.id ASC") }).
		First(&t, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, filter ListFilter, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if filter.Type != "" {
		tx = tx.Where("type = ?", string(filter.Type))
	}
	if filter.CreatorUserID != "" {
		tx = tx.Where("creator_user_id = ?", filter.CreatorUserID)
	}
	if filter.Open != nil {
		if *filter.Open {
			tx = tx.Where("closed_at IS NULL")
		} else {
			tx = tx.Where("closed_at IS NOT NULL")
		}
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *TicketService) FindOpenByChannel(ctx context.Context, channelID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("destination_channel_id = ? AND closed_at IS NULL", channelID).
		First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// FindOpenByChatID возвращает самый свежий открытый тикет чата.
func (s *TicketService) FindOpenByChatID(ctx context.Context, chatID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("origin_chat_id = ? AND closed_at IS NULL", chatID).
		Order("id DESC").
		Take(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *TicketService) FindAllOpen(ctx context.Context) ([]model.Ticket, error) {
	var items []model.Ticket
	if err := s.db.WithContext(ctx).Where("closed_at IS NULL").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("%w: find open: %v", errs.ErrPersistence, err)
	}
	return items, nil
}

// AppendMessage — одна вставка строки, порядок задаёт bigserial id.
func (s *TicketService) AppendMessage(ctx context.Context, ticketID int64, m model.Message) error {
	m.ID = 0
	m.TicketID = ticketID
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("%w: append message to %d: %v", errs.ErrPersistence, ticketID, err)
	}
	return nil
}

const closeSQL = `UPDATE tickets SET closed_at = ?, closed_by_user_id = ?
WHERE id = ? AND closed_at IS NULL
RETURNING *`

// Close закрывает тикет, если он ещё открыт; иначе ErrTicketNotFound.
func (s *TicketService) Close(ctx context.Context, id int64, closerID string, at time.Time) (*model.Ticket, error) {
	var t model.Ticket
	res := s.db.WithContext(ctx).Raw(closeSQL, at, model.StringPtr(closerID), id).Scan(&t)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: close ticket %d: %v", errs.ErrPersistence, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrTicketNotFound
	}
	return &t, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrTicketNotFound
	}
	return fmt.Errorf("%w: %v", errs.ErrPersistence, err)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Коллекции и поля совпадают с базой исходного бота (tickets / counters).
const (
	collTickets  = "tickets"
	collCounters = "counters"
)

type mongoMessage struct {
	Sender      string    `bson:"sender"`
	Content     string    `bson:"content"`
	DiscordID   *string   `bson:"discordId,omitempty"`
	TelegramID  *string   `bson:"telegramId,omitempty"`
	Attachments []string  `bson:"attachments"`
	Timestamp   time.Time `bson:"timestamp"`
}

type mongoTicket struct {
	ID               int64             `bson:"_id"`
	TelegramChatID   *string           `bson:"telegramChatId"`
	DiscordChannelID string            `bson:"discordChannelId"`
	DiscordUserID    *string           `bson:"discordUserId,omitempty"`
	TicketType       string            `bson:"ticketType"`
	Answers          map[string]string `bson:"answers"`
	Messages         []mongoMessage    `bson:"messages"`
	CreatedAt        time.Time         `bson:"createdAt"`
	ClosedAt         *time.Time        `bson:"closedAt,omitempty"`
	ClosedByAdminID  *string           `bson:"closedByAdminId,omitempty"`
}

func toMongoMessage(m model.Message) mongoMessage {
	att := []string(m.Attachments)
	if att == nil {
		att = []string{}
	}
	return mongoMessage{
		Sender:      m.Sender,
		Content:     m.Content,
		DiscordID:   m.DiscordUserID,
		TelegramID:  m.TelegramUserID,
		Attachments: att,
		Timestamp:   m.Timestamp,
	}
}

func toMongoTicket(t *model.Ticket) mongoTicket {
	doc := mongoTicket{
		ID:               t.ID,
		TelegramChatID:   t.OriginChatID,
		DiscordChannelID: t.DestinationChannelID,
		DiscordUserID:    t.CreatorUserID,
		TicketType:       string(t.Type),
		Answers:          map[string]string(t.Answers),
		Messages:         make([]mongoMessage, 0, len(t.Messages)),
		CreatedAt:        t.CreatedAt,
		ClosedAt:         t.ClosedAt,
		ClosedByAdminID:  t.ClosedByUserID,
	}
	if doc.Answers == nil {
		doc.Answers = map[string]string{}
	}
	for _, m := range t.Messages {
		doc.Messages = append(doc.Messages, toMongoMessage(m))
	}
	return doc
}

func (d mongoTicket) toModel() model.Ticket {
	tt, err := model.ParseTicketType(d.TicketType)
	if err != nil {
		log.Printf("service: ticket %d: %v", d.ID, err)
		tt = model.TicketType(d.TicketType)
	}
	t := model.Ticket{
		ID:                   d.ID,
		OriginChatID:         d.TelegramChatID,
		DestinationChannelID: d.DiscordChannelID,
		CreatorUserID:        d.DiscordUserID,
		Type:                 tt,
		Answers:              model.Answers(d.Answers),
		CreatedAt:            d.CreatedAt,
		ClosedAt:             d.ClosedAt,
		ClosedByUserID:       d.ClosedByAdminID,
	}
	if t.Answers == nil {
		t.Answers = model.Answers{}
	}
	for i, m := range d.Messages {
		t.Messages = append(t.Messages, model.Message{
			ID:             int64(i + 1),
			TicketID:       d.ID,
			Sender:         m.Sender,
			DiscordUserID:  m.DiscordID,
			TelegramUserID: m.TelegramID,
			Content:        m.Content,
			Attachments:    m.Attachments,
			Timestamp:      m.Timestamp,
		})
	}
	return t
}

// MongoTicketService — TicketServicer поверх MongoDB (STORE_DRIVER=mongo).
type MongoTicketService struct {
	tickets  *mongo.Collection
	counters *mongo.Collection
}

func NewMongoTicketService(db *mongo.Database) *MongoTicketService {
	return &MongoTicketService{
		tickets:  db.Collection(collTickets),
		counters: db.Collection(collCounters),
	}
}

// OpenMongo подключается и проверяет соединение.
func OpenMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(database), nil
}

func (s *MongoTicketService) NextCounterValue(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("%w: next counter %s: %v", errs.ErrPersistence, name, err)
	}
	return doc.Seq, nil
}

func (s *MongoTicketService) EnsureCounterAtLeast(ctx context.Context, name string, v int64) error {
	_, err := s.counters.UpdateOne(ctx, bson.M{"_id": name}, bson.M{"$max": bson.M{"seq": v}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: ensure counter %s: %v", errs.ErrPersistence, name, err)
	}
	return nil
}

func (s *MongoTicketService) CounterValue(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read counter %s: %v", errs.ErrPersistence, name, err)
	}
	return doc.Seq, nil
}

func (s *MongoTicketService) Insert(ctx context.Context, t *model.Ticket) error {
	if _, err := s.tickets.InsertOne(ctx, toMongoTicket(t)); err != nil {
		return fmt.Errorf("%w: insert ticket %d: %v", errs.ErrPersistence, t.ID, err)
	}
	return nil
}

func (s *MongoTicketService) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	return s.findOne(ctx, bson.M{"_id": id}, nil)
}

func (s *MongoTicketService) List(ctx context.Context, filter ListFilter, limit, offset int) ([]model.Ticket, int64, error) {
	q := listQuery(filter)
	total, err := s.tickets.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	items, err := s.find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// listQuery — фильтр списка; тип ищется и под старыми названиями.
func listQuery(filter ListFilter) bson.M {
	q := bson.M{}
	if filter.Type != "" {
		q["ticketType"] = bson.M{"$in": filter.Type.StoredValues()}
	}
	if filter.CreatorUserID != "" {
		q["discordUserId"] = filter.CreatorUserID
	}
	if filter.Open != nil {
		if *filter.Open {
			q["closedAt"] = nil
		} else {
			q["closedAt"] = bson.M{"$ne": nil}
		}
	}
	return q
}

func (s *MongoTicketService) FindOpenByChannel(ctx context.Context, channelID string) (*model.Ticket, error) {
	return s.findOne(ctx, bson.M{"discordChannelId": channelID, "closedAt": nil}, nil)
}

func (s *MongoTicketService) FindOpenByChatID(ctx context.Context, chatID string) (*model.Ticket, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	return s.findOne(ctx, bson.M{"telegramChatId": chatID, "closedAt": nil}, opts)
}

func (s *MongoTicketService) FindAllOpen(ctx context.Context) ([]model.Ticket, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"messages": 0})
	items, err := s.find(ctx, bson.M{"closedAt": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find open: %v", errs.ErrPersistence, err)
	}
	return items, nil
}

// AppendMessage — атомарный $push в массив messages.
func (s *MongoTicketService) AppendMessage(ctx context.Context, ticketID int64, m model.Message) error {
	res, err := s.tickets.UpdateOne(ctx, bson.M{"_id": ticketID}, bson.M{"$push": bson.M{"messages": toMongoMessage(m)}})
	if err != nil {
		return fmt.Errorf("%w: append message to %d: %v", errs.ErrPersistence, ticketID, err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrTicketNotFound
	}
	return nil
}

func (s *MongoTicketService) Close(ctx context.Context, id int64, closerID string, at time.Time) (*model.Ticket, error) {
	set := bson.M{"closedAt": at}
	if closerID != "" {
		set["closedByAdminId"] = closerID
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"messages": 0})
	var doc mongoTicket
	err := s.tickets.FindOneAndUpdate(ctx, bson.M{"_id": id, "closedAt": nil}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, fmt.Errorf("%w: close ticket %d: %v", errs.ErrPersistence, id, err)
	}
	t := doc.toModel()
	return &t, nil
}

func (s *MongoTicketService) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*model.Ticket, error) {
	var doc mongoTicket
	var err error
	if opts != nil {
		err = s.tickets.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.tickets.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}
	t := doc.toModel()
	return &t, nil
}

func (s *MongoTicketService) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Ticket, error) {
	cur, err := s.tickets.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []mongoTicket
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]model.Ticket, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

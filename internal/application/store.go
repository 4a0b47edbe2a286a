package application

import (
	"context"
	"fmt"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/database"
	"github.com/psds-microservice/ticket-bridge/internal/handler"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

// Store — открытое хранилище тикетов выбранного драйвера.
type Store struct {
	service.TicketServicer
	Ready handler.ReadyCheck
	close func(ctx context.Context) error
}

func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStore подключает postgres (с миграциями) или mongo в зависимости от STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		client, db, err := service.OpenMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		return &Store{
			TicketServicer: service.NewMongoTicketService(db),
			Ready:          func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:          client.Disconnect,
		}, nil
	default:
		if migrate {
			if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		db, err := database.Open(cfg.DSN(), cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return &Store{
			TicketServicer: service.NewTicketService(db),
			Ready:          sqlDB.PingContext,
			close:          func(context.Context) error { return sqlDB.Close() },
		}, nil
	}
}

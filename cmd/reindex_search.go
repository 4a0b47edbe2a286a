package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/application"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/searchindex"
	"github.com/psds-microservice/ticket-bridge/internal/service"
	"github.com/spf13/cobra"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex closed tickets into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

const reindexPage = 100

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	store, err := application.OpenStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	var send func(t *model.Ticket) error
	switch {
	case len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTicket != "":
		log.Println("reindex-search: using Kafka for reindexing")
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
		defer producer.Close()
		send = func(t *model.Ticket) error {
			producer.ProduceTicketEvent(ctx, kafka.EventTicketReindex, t.ID, map[string]interface{}{
				"type":       t.Type.String(),
				"channel_id": t.DestinationChannelID,
				"document":   searchindex.NewPayload(t),
			})
			return nil
		}
	case cfg.SearchServiceURL != "":
		log.Println("reindex-search: using HTTP for reindexing")
		client := searchindex.NewClient(cfg.SearchServiceURL)
		send = func(t *model.Ticket) error { return client.Index(ctx, t) }
	default:
		log.Println("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set")
		return nil
	}

	closed := false
	filter := service.ListFilter{Open: &closed}
	done, failed := 0, 0
	for offset := 0; ; offset += reindexPage {
		page, total, err := store.List(ctx, filter, reindexPage, offset)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		for i := range page {
			// List отдаёт тикеты без сообщений
			full, err := store.GetByID(ctx, page[i].ID)
			if err == nil {
				err = send(full)
			}
			if err != nil {
				log.Printf("reindex-search: ticket %d: %v", page[i].ID, err)
				failed++
				continue
			}
			done++
		}
		log.Printf("reindex-search: %d/%d", done+failed, total)
		if len(page) < reindexPage {
			break
		}
	}
	log.Printf("reindex-search: done, indexed %d, failed %d", done, failed)
	return nil
}

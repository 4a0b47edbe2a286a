package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/attachment"
	"github.com/psds-microservice/ticket-bridge/internal/bans"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/discord"
	"github.com/psds-microservice/ticket-bridge/internal/handler"
	"github.com/psds-microservice/ticket-bridge/internal/intake"
	"github.com/psds-microservice/ticket-bridge/internal/janitor"
	"github.com/psds-microservice/ticket-bridge/internal/kafka"
	"github.com/psds-microservice/ticket-bridge/internal/relay"
	"github.com/psds-microservice/ticket-bridge/internal/router"
	"github.com/psds-microservice/ticket-bridge/internal/searchindex"
	"github.com/psds-microservice/ticket-bridge/internal/telegram"
	"github.com/psds-microservice/ticket-bridge/internal/ticket"
	"github.com/psds-microservice/ticket-bridge/internal/vk"
)

// Bridge — процесс целиком: боты Discord и Telegram, HTTP API, очистка загрузок.
type Bridge struct {
	cfg      *config.Config
	store    *Store
	manager  *ticket.Manager
	producer *kafka.Producer
	discord  *discord.Bot
	poller   *telegram.Poller
	janitor  *janitor.Janitor
	httpSrv  *http.Server
}

// NewBridge подключает хранилище и платформы и собирает зависимости.
func NewBridge(ctx context.Context, cfg *config.Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateBots(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := OpenStore(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	guild := discord.NewGuild(session, cfg.Discord.GuildID)

	tg, err := telegram.NewBot(cfg.TelegramToken)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	chat := telegram.NewChat(tg)

	vkClient := vk.NewClient(vk.Config{Token: cfg.VK.Token, GroupID: cfg.VK.GroupID, AlbumID: cfg.VK.AlbumID})
	var uploader attachment.Uploader
	if vkClient.Enabled() {
		uploader = vkClient
	} else {
		log.Println("application: VK_TOKEN not set, attachments are forwarded without durable links")
	}
	relayer := attachment.NewRelay(attachment.Config{
		DownloadsDir:  cfg.DownloadsDir,
		MaxConcurrent: cfg.MaxConcurrentUploads,
	}, uploader)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)

	manager := ticket.NewManager(ticket.Config{
		ModRoleIDs:             cfg.Discord.ModRoleIDs,
		AdminRoleIDs:           cfg.Discord.AdminRoleIDs,
		ClosedTicketsChannelID: cfg.Discord.ClosedTicketsChannelID,
		TelegramCategoryID:     cfg.Discord.TelegramCategoryID,
		CloseGrace:             cfg.CloseGrace,
	}, ticket.Deps{
		Store:       store.TicketServicer,
		Guild:       guild,
		Chat:        chat,
		Attachments: relayer,
		Events:      producer,
		Search:      searchindex.NewClient(cfg.SearchServiceURL),
	})

	dispatcher := relay.NewDispatcher(relay.Deps{
		Tickets: manager,
		Intake:  intake.NewEngine(manager, chat),
		Appeals: appeals(cfg),
		Guild:   guild,
		Chat:    chat,
	})

	sweeper, err := janitor.New(cfg.DownloadsDir, cfg.DownloadsSweep, janitor.DefaultMaxAge)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(handler.NewTicketHandler(store.TicketServicer), store.Ready),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Bridge{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		producer: producer,
		discord:  discord.NewBot(session, guild, dispatcher),
		poller:   telegram.NewPoller(tg, dispatcher),
		janitor:  sweeper,
		httpSrv:  httpSrv,
	}, nil
}

// appeals — проверка SteamID и поиск рассматривающего администратора; admins.cfg необязателен.
func appeals(cfg *config.Config) *bans.Service {
	admins, err := bans.LoadAdmins(cfg.AdminsCfg)
	if err != nil {
		log.Printf("application: %v (reviewer lookup disabled)", err)
	}
	return bans.NewService(
		bans.NewSteam(cfg.SteamAPIKey, ""),
		bans.NewBattleMetrics(cfg.BattleMetrics.Token, cfg.BattleMetrics.OrgID, ""),
		admins,
	)
}

// Run восстанавливает связи открытых тикетов и работает до отмены ctx.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.shutdown()

	rehydrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := b.manager.Rehydrate(rehydrateCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	host := b.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + b.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", b.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Metrics:       %s/metrics", base)
	log.Printf("  API v1:        %s/api/v1/tickets", base)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Printf("%s: %v", name, err)
				stop()
			}
		}()
	}

	run("http", func(context.Context) error {
		if err := b.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	run("discord", b.discord.Run)
	run("telegram", b.poller.Run)
	b.janitor.Start()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	wg.Wait()
	return nil
}

func (b *Bridge) shutdown() {
	b.janitor.Stop()
	// фоновые задачи закрытия (DM, архив, удаление каналов) дожидаются завершения
	b.manager.Wait()
	if err := b.producer.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.store.Close(ctx); err != nil {
		log.Printf("store close: %v", err)
	}
}

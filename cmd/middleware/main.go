// Package main runs the consortium middleware: the per-kind request
// queues, the event stream pipeline, the expired-event reaper, and the
// HTTP API.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/api"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/bank"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/queue"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/service"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.LevelError).Fatalf("failed to load configuration: %v", err)
	}
	log := logging.New(logging.ParseLevel(cfg.Logging.Level))
	log.Info("middleware starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var cache *storage.RedisCache
	cache, err = storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		// The cache is advisory; lookups fall through to Postgres.
		log.WithError(err).Warn("Redis unavailable, running without registration cache")
		cache = nil
	} else {
		defer cache.Close()
	}

	var archive *storage.ClickHouseDB
	if cfg.Database.ClickHouse.Enabled {
		archive, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			log.Fatalf("failed to connect to ClickHouse: %v", err)
		}
		defer archive.Close()
		if err := storage.RunClickHouseMigrations(context.Background(), archive, cfg.Database.ClickHouse.MigrationsPath); err != nil {
			log.Fatalf("failed to apply archive schema: %v", err)
		}
	}

	remote := chain.NewRemoteClient(cfg.Chain.NodeURL)
	timeouts := chain.NewTimeoutHeightCache(remote, cfg.Chain.TimeoutBlocks, cfg.Chain.TimeoutRefresh)
	bankClient := bank.NewHTTPClient(cfg.Bank.URL)

	requests := storage.NewRequestRepository(postgres)
	statuses := storage.NewTxStatusRepository(postgres)
	bookmarks := storage.NewBookmarkRepository(postgres)
	movements := storage.NewMovementRepository(postgres)

	registrations := service.NewRegistrationService(postgres, requests, cache, log)
	requestSvc := service.NewRequestService(postgres, requests, registrations, log)
	settlements := service.NewSettlementService(postgres, requests, log)

	opts := queue.Options{Workers: cfg.Queues.Workers, PollingDelay: cfg.Queues.PollingDelay}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	// Create and complete queues for the single-message kinds.
	for _, kind := range []domain.RequestKind{domain.KindMint, domain.KindBurn, domain.KindRedemption, domain.KindTag, domain.KindDetag} {
		create := service.NewCreateQueue(kind, postgres, requests, statuses, remote, timeouts, cfg.Chain.Denom, log)
		run(queue.NewRunner(create, opts, log).Run)

		complete := service.NewCompleteQueue(kind, postgres, requests, statuses, log)
		if kind == domain.KindTag || kind == domain.KindDetag {
			complete = complete.WithAttributeCheck(remote, cfg.Chain.RegistrationAttribute, registrations)
		}
		run(queue.NewRunner(complete, opts, log).Run)
	}

	// Marker transfers broadcast as one batch per cycle.
	transfers := service.NewTransferQueue(postgres, requests, statuses, registrations, remote, timeouts, cfg.Chain.Denom, cfg.Queues.BatchSize, log)
	run(queue.NewBatchRunner(transfers, opts, log).Run)
	transferComplete := service.NewCompleteQueue(domain.KindTransfer, postgres, requests, statuses, log)
	run(queue.NewRunner(transferComplete, opts, log).Run)

	// Bank notifications.
	for _, kind := range []domain.RequestKind{domain.KindMint, domain.KindBurn} {
		notify, err := service.NewNotificationQueue(kind, postgres, requests, bankClient, log)
		if err != nil {
			log.Fatalf("failed to build notification queue: %v", err)
		}
		run(queue.NewRunner(notify, opts, log).Run)
	}
	deposits := service.NewDepositQueue(postgres, movements, registrations, bankClient, log)
	run(queue.NewRunner(deposits, opts, log).Run)

	// Expired-event reaper.
	reaper := service.NewReaper(postgres, statuses, remote, cfg.Reaper.Timeout, log)
	run(queue.NewRunner(reaper, queue.Options{Workers: 1, PollingDelay: cfg.Reaper.Interval}, log).Run)

	// Event stream pipeline.
	consumer := service.NewEventConsumer(postgres, movements, statuses, archive, cfg.Chain.Denom, cfg.Chain.MemberAddress, log)
	filter := stream.NewEventFilter(service.EventTypes())
	events := stream.New(remote, remote, filter, consumer, bookmarks, stream.Options{
		StreamID:          service.StreamID,
		EpochHeight:       cfg.Stream.EpochHeight,
		BackfillWorkers:   cfg.Stream.BackfillWorkers,
		ChunkSize:         cfg.Stream.ChunkSize,
		FetchRPS:          cfg.Stream.FetchRPS,
		StalenessInterval: cfg.Stream.StalenessInterval,
	}, log)
	run(events.Run)

	// HTTP API.
	status := storage.NewStatusReader(postgres, bookmarks, movements, service.StreamID)
	server := api.NewServer(&cfg.Server, requestSvc, registrations, settlements, status, log)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}

	wg.Wait()
	log.Info("middleware stopped")
}

// Package main replays a historical block range through the event
// consumer. Used to repair gaps after an outage or to reprocess a range
// with a corrected filter. All consumer writes are idempotent, so
// overlapping a range already covered by the live stream is safe; the
// bookmark only moves forward.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/service"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/stream"
)

func main() {
	var from, to int64
	flag.Int64Var(&from, "from", 0, "first block height to replay (inclusive)")
	flag.Int64Var(&to, "to", 0, "last block height to replay (inclusive)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.LevelError).Fatalf("failed to load configuration: %v", err)
	}
	log := logging.New(logging.ParseLevel(cfg.Logging.Level))

	if from < 1 || to < from {
		log.Fatalf("invalid range: from=%d to=%d", from, to)
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var archive *storage.ClickHouseDB
	if cfg.Database.ClickHouse.Enabled {
		archive, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			log.Fatalf("failed to connect to ClickHouse: %v", err)
		}
		defer archive.Close()
	}

	remote := chain.NewRemoteClient(cfg.Chain.NodeURL)
	movements := storage.NewMovementRepository(postgres)
	statuses := storage.NewTxStatusRepository(postgres)
	bookmarks := storage.NewBookmarkRepository(postgres)

	consumer := service.NewEventConsumer(postgres, movements, statuses, archive, cfg.Chain.Denom, cfg.Chain.MemberAddress, log)
	filter := stream.NewEventFilter(service.EventTypes())
	backfiller := stream.NewBackfiller(remote, filter, cfg.Stream.BackfillWorkers, cfg.Stream.ChunkSize, cfg.Stream.FetchRPS, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatch := func(ctx context.Context, block stream.BlockData) error {
		if err := consumer.HandleBlock(ctx, block); err != nil {
			return err
		}
		return bookmarks.Advance(ctx, service.StreamID, block.Height)
	}

	log.Infof("replaying blocks %d..%d", from, to)
	if err := backfiller.Run(ctx, from, to, dispatch); err != nil {
		log.Fatalf("backfill failed: %v", err)
	}
	log.Info("backfill complete")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"imoflow/client"
	"imoflow/config"
	"imoflow/db"
	"imoflow/feed"
	"imoflow/filter"
	"imoflow/listing"
	"imoflow/match"
	"imoflow/org"
	"imoflow/workers"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.Pool.MaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	listingRepo := listing.NewRepository(pool)
	clientRepo := client.NewRepository(pool)
	filterRepo := filter.NewRepository(pool)
	matchStore := match.NewStore(pool)

	clientService := client.NewService(clientRepo).
		WithOrgChecker(org.NewRepository(pool))
	matchService := match.NewService(matchStore, listingRepo).
		WithFilterLister(filterRepo)

	batcher := match.NewBatcher(matchStore, cfg.Feed.DrainInterval)
	defer batcher.Stop()

	// The realtime transport adapter attaches here; until it does, the source
	// only carries health signals and the polling fallback does the work.
	source := feed.NewChannelSource(64)
	defer source.Close()

	consumer := feed.NewConsumer(source, listingRepo, listingRepo, batcher).
		WithPollInterval(cfg.Feed.PollInterval)

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("feed consumer stopped: %v", err)
		}
	}()

	// Load the live filter set before any event can arrive unmatched.
	active, err := filterRepo.ListActive(ctx)
	if err != nil {
		log.Fatalf("load active filters: %v", err)
	}
	for _, c := range active {
		consumer.SetFilter(c)
	}
	log.Printf("feed consumer running with %d active filters (geography %q)",
		len(active), cfg.Feed.Geography)

	poller := feed.NewFreshnessPoller(listingRepo, cfg.Feed.FreshnessInterval)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("freshness poller stopped: %v", err)
		}
	}()
	go func() {
		for range poller.Updates() {
			log.Printf("feed: newer listings available")
		}
	}()

	chase := workers.NewChaseWorker(clientService, cfg.Chase.Cron)
	if err := chase.Start(ctx); err != nil {
		log.Fatalf("start chase worker: %v", err)
	}
	defer chase.Stop()
	log.Printf("chase worker running (%s)", cfg.Chase.Cron)

	reconcile := workers.NewReconcileWorker(matchService, cfg.Reconcile.Cron)
	if err := reconcile.Start(ctx); err != nil {
		log.Fatalf("start reconcile worker: %v", err)
	}
	defer reconcile.Stop()
	// Backfill matches for filters saved while the daemon was down.
	reconcile.Trigger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
}

package workers

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultReconcileCron re-runs the full match sweep every ten minutes, catching
// anything the realtime path missed.
const DefaultReconcileCron = "@every 10m"

// Sweeper re-evaluates every active filter against the stored listings.
// Implemented by match.Service.
type Sweeper interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileWorker periodically backstops realtime matching with a full sweep.
type ReconcileWorker struct {
	matches  Sweeper
	cronSpec string
	cron     *cron.Cron
	trigger  chan struct{}
}

func NewReconcileWorker(matches Sweeper, cronSpec string) *ReconcileWorker {
	if cronSpec == "" {
		cronSpec = DefaultReconcileCron
	}
	return &ReconcileWorker{
		matches:  matches,
		cronSpec: cronSpec,
		cron:     cron.New(),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate sweep; coalesces when one is already queued.
func (w *ReconcileWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start schedules the sweep and listens for manual triggers until the context
// is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.cronSpec, func() { w.sweep(ctx) }); err != nil {
		return err
	}
	w.cron.Start()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.trigger:
				w.sweep(ctx)
			}
		}
	}()
	return nil
}

func (w *ReconcileWorker) Stop() {
	w.cron.Stop()
}

func (w *ReconcileWorker) sweep(ctx context.Context) {
	created, err := w.matches.ReconcileAll(ctx)
	if err != nil {
		log.Printf("reconcile: sweep: %v", err)
		return
	}
	if created > 0 {
		log.Printf("reconcile: sweep created %d matches", created)
	}
}

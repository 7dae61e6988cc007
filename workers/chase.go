package workers

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"imoflow/client"
)

// DefaultChaseCron runs the overdue sweep once a minute.
const DefaultChaseCron = "@every 1m"

// OverdueLister supplies active clients whose resolved follow-up due date has
// passed. Implemented by client.Service.
type OverdueLister interface {
	ListOverdue(ctx context.Context) ([]client.Client, error)
}

// ChaseWorker periodically surfaces clients whose pending contact is overdue.
// It can also be kicked manually via Trigger.
type ChaseWorker struct {
	clients  OverdueLister
	cronSpec string
	cron     *cron.Cron
	trigger  chan struct{}
}

func NewChaseWorker(clients OverdueLister, cronSpec string) *ChaseWorker {
	if cronSpec == "" {
		cronSpec = DefaultChaseCron
	}
	return &ChaseWorker{
		clients:  clients,
		cronSpec: cronSpec,
		cron:     cron.New(),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate sweep; coalesces when one is already queued.
func (w *ChaseWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start schedules the sweep and listens for manual triggers until the context
// is cancelled.
func (w *ChaseWorker) Start(ctx context.Context) error {
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

func (w *ChaseWorker) Stop() {
	w.cron.Stop()
}

func (w *ChaseWorker) sweep(ctx context.Context) {
	overdue, err := w.clients.ListOverdue(ctx)
	if err != nil {
		log.Printf("chase: list overdue: %v", err)
		return
	}
	for _, c := range overdue {
		due := c.DueAt()
		if due == nil {
			continue
		}
		log.Printf("chase: client %s (%s) overdue since %s", c.ID, c.Name, due.Format(time.RFC3339))
	}
}

package feed

import (
	"context"
	"log"
	"time"
)

// DefaultFreshnessInterval is how often the coarse new-items probe runs.
const DefaultFreshnessInterval = 30 * time.Second

// LatestProber reports the newest listing's creation stamp and id.
type LatestProber interface {
	LatestCreation(ctx context.Context) (time.Time, string, error)
}

// FreshnessPoller is the degraded-mode safety net for list views not tied to
// one client: it compares the newest creation stamp against the last one
// observed and emits a signal when newer listings exist. Pause and Resume are
// the liveness control; a paused poller keeps ticking but probes nothing.
type FreshnessPoller struct {
	probe    LatestProber
	interval time.Duration

	updates chan struct{}
	pause   chan bool

	lastAt time.Time
	lastID string
}

func NewFreshnessPoller(probe LatestProber, interval time.Duration) *FreshnessPoller {
	if interval <= 0 {
		interval = DefaultFreshnessInterval
	}
	return &FreshnessPoller{
		probe:    probe,
		interval: interval,
		updates:  make(chan struct{}, 1),
		pause:    make(chan bool, 1),
	}
}

// Updates signals at most once per tick that newer listings are available.
func (p *FreshnessPoller) Updates() <-chan struct{} {
	return p.updates
}

func (p *FreshnessPoller) Pause()  { p.setPaused(true) }
func (p *FreshnessPoller) Resume() { p.setPaused(false) }

func (p *FreshnessPoller) setPaused(v bool) {
	// Only the latest liveness state matters; drop a stale one.
	select {
	case <-p.pause:
	default:
	}
	p.pause <- v
}

// Run probes until the context is cancelled.
func (p *FreshnessPoller) Run(ctx context.Context) error {
	// Seed the baseline so startup does not signal about old rows.
	if at, id, err := p.probe.LatestCreation(ctx); err == nil {
		p.lastAt, p.lastID = at, id
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-p.pause:
			paused = v
		case <-ticker.C:
			if paused {
				continue
			}
			at, id, err := p.probe.LatestCreation(ctx)
			if err != nil {
				log.Printf("feed: freshness probe: %v", err)
				continue
			}
			if at.After(p.lastAt) || (at.Equal(p.lastAt) && id != p.lastID) {
				p.lastAt, p.lastID = at, id
				select {
				case p.updates <- struct{}{}:
				default:
				}
			}
		}
	}
}

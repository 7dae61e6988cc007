package feed

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"imoflow/filter"
	"imoflow/listing"
)

// DefaultPollInterval is the re-query cadence while the subscription is down.
const DefaultPollInterval = 60 * time.Second

// Enqueuer hands qualifying pairs to the match batcher.
type Enqueuer interface {
	Enqueue(clientID, listingID string)
}

// ListingFetcher back-fills partial event payloads by id.
type ListingFetcher interface {
	GetByID(ctx context.Context, id string) (listing.Listing, error)
}

// ListingSearcher runs the coarse store query during polling fallback.
type ListingSearcher interface {
	Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error)
}

type filterCommand struct {
	remove   bool
	clientID string
	criteria filter.Criteria
}

// Consumer owns the authoritative set of active filters and evaluates every
// inbound listing against it. All mutation goes through the command channel
// into the single run loop, so nothing races and no closure can hold a stale
// filter. While the subscription is unhealthy the consumer re-queries the
// store on a fixed interval instead.
type Consumer struct {
	src    Source
	fetch  ListingFetcher
	search ListingSearcher
	sink   Enqueuer

	pollInterval time.Duration
	cmds         chan filterCommand
	filters      map[string]filter.Criteria

	state atomic.Value // Status
}

func NewConsumer(src Source, fetch ListingFetcher, search ListingSearcher, sink Enqueuer) *Consumer {
	c := &Consumer{
		src:          src,
		fetch:        fetch,
		search:       search,
		sink:         sink,
		pollInterval: DefaultPollInterval,
		cmds:         make(chan filterCommand, 16),
		filters:      make(map[string]filter.Criteria),
	}
	c.state.Store(StatusSubscribed)
	return c
}

func (c *Consumer) WithPollInterval(d time.Duration) *Consumer {
	if d > 0 {
		c.pollInterval = d
	}
	return c
}

// SetFilter installs or replaces a client's criteria in the live set.
func (c *Consumer) SetFilter(crit filter.Criteria) {
	c.cmds <- filterCommand{clientID: crit.ClientID, criteria: crit}
}

// FilterSaved satisfies filter.Observer.
func (c *Consumer) FilterSaved(crit filter.Criteria) {
	c.SetFilter(crit)
}

// RemoveFilter drops a client from live matching, e.g. after closure.
func (c *Consumer) RemoveFilter(clientID string) {
	c.cmds <- filterCommand{remove: true, clientID: clientID}
}

// FilterRemoved satisfies filter.Observer.
func (c *Consumer) FilterRemoved(clientID string) {
	c.RemoveFilter(clientID)
}

// State reports the last observed subscription health.
func (c *Consumer) State() Status {
	return c.state.Load().(Status)
}

// Degraded reports whether the consumer is in polling fallback.
func (c *Consumer) Degraded() bool {
	return c.State() != StatusSubscribed
}

// Run processes events, commands, health signals, and fallback polls until the
// context is cancelled or the source closes. Single goroutine; events are
// handled one at a time in arrival order.
func (c *Consumer) Run(ctx context.Context) error {
	var (
		pollTicker *time.Ticker
		pollCh     <-chan time.Time
	)
	stopPolling := func() {
		if pollTicker != nil {
			pollTicker.Stop()
			pollTicker = nil
			pollCh = nil
		}
	}
	defer stopPolling()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-c.cmds:
			if cmd.remove {
				delete(c.filters, cmd.clientID)
			} else {
				crit := cmd.criteria
				crit.Normalize()
				c.filters[cmd.clientID] = crit
			}

		case ev, ok := <-c.src.Events():
			if !ok {
				return nil
			}
			c.handleEvent(ctx, ev)

		case st, ok := <-c.src.Statuses():
			if !ok {
				return nil
			}
			c.state.Store(st)
			if st == StatusSubscribed {
				if pollTicker != nil {
					log.Printf("feed: subscription recovered, leaving polling mode")
				}
				stopPolling()
			} else if pollTicker == nil {
				log.Printf("feed: subscription %s, entering polling mode", st)
				pollTicker = time.NewTicker(c.pollInterval)
				pollCh = pollTicker.C
				// Catch up immediately rather than waiting one interval.
				c.pollOnce(ctx)
			}

		case <-pollCh:
			c.pollOnce(ctx)
		}
	}
}

// handleEvent resolves the full listing record and routes it to every client
// whose live criteria it satisfies.
func (c *Consumer) handleEvent(ctx context.Context, ev Event) {
	if ev.Op != OpInsert {
		return
	}

	l, err := c.resolve(ctx, ev)
	if err != nil {
		// Unresolvable listings are dropped; the reconciliation sweep will
		// pick them up once they become visible.
		log.Printf("feed: resolve listing %s: %v", ev.ListingID, err)
		return
	}

	now := time.Now()
	for clientID, crit := range c.filters {
		if !crit.Active {
			continue
		}
		if filter.MatchesLiveAt(l, crit, now) {
			c.sink.Enqueue(clientID, l.ID)
		}
	}
}

func (c *Consumer) resolve(ctx context.Context, ev Event) (listing.Listing, error) {
	if ev.Listing != nil {
		return *ev.Listing, nil
	}
	if ev.ListingID == "" {
		return listing.Listing{}, errors.New("feed: event without listing id")
	}
	return c.fetch.GetByID(ctx, ev.ListingID)
}

// pollOnce re-runs the store query for every live filter. Duplicate pairs are
// dropped downstream by the batcher and the idempotent insert.
func (c *Consumer) pollOnce(ctx context.Context) {
	now := time.Now()
	for clientID, crit := range c.filters {
		if !crit.Active {
			continue
		}
		candidates, err := c.search.Search(ctx, crit.SearchQuery(200))
		if err != nil {
			log.Printf("feed: poll search for %s: %v", clientID, err)
			continue
		}
		for _, l := range candidates {
			if filter.MatchesAt(l, crit, now) {
				c.sink.Enqueue(clientID, l.ID)
			}
		}
	}
}

package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imoflow/filter"
	"imoflow/listing"
)

type pair struct {
	clientID  string
	listingID string
}

type recordingSink struct {
	mu    sync.Mutex
	pairs []pair
}

func (r *recordingSink) Enqueue(clientID, listingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, pair{clientID: clientID, listingID: listingID})
}

func (r *recordingSink) snapshot() []pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

type stubListings struct {
	mu       sync.Mutex
	byID     map[string]listing.Listing
	results  []listing.Listing
	searches int
}

func (s *stubListings) GetByID(ctx context.Context, id string) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return listing.Listing{}, errors.New("not found")
	}
	return l, nil
}

func (s *stubListings) Search(ctx context.Context, q listing.SearchQuery) ([]listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	return s.results, nil
}

func (s *stubListings) searchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

func i64(v int64) *int64 { return &v }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// waitDrained blocks until the run loop has dequeued every pending filter
// command, so later events observe the finished filter set.
func waitDrained(t *testing.T, c *Consumer) {
	t.Helper()
	waitFor(t, time.Second, func() bool { return len(c.cmds) == 0 })
}

func startConsumer(t *testing.T, c *Consumer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("consumer run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestConsumer_RoutesEventToMatchingClients(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{}
	sink := &recordingSink{}
	c := NewConsumer(src, listings, listings, sink)
	startConsumer(t, c)

	c.SetFilter(filter.Criteria{
		ClientID: "c-sale",
		Active:   true,
		DealType: listing.DealSale,
	})
	c.SetFilter(filter.Criteria{
		ClientID: "c-rental",
		Active:   true,
		DealType: listing.DealRental,
	})
	c.SetFilter(filter.Criteria{
		ClientID: "c-paused",
		DealType: listing.DealSale,
	})
	waitDrained(t, c)

	l := listing.Listing{ID: "lst-1", DealType: listing.DealSale, Price: i64(250_000)}
	src.Publish(Event{Op: OpInsert, ListingID: l.ID, Listing: &l})

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })
	got := sink.snapshot()
	if got[0] != (pair{clientID: "c-sale", listingID: "lst-1"}) {
		t.Errorf("expected only the active sale client to receive the listing, got %v", got)
	}
}

func TestConsumer_BackfillsPartialPayload(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{byID: map[string]listing.Listing{
		"lst-1": {ID: "lst-1", DealType: listing.DealSale, Price: i64(250_000)},
	}}
	sink := &recordingSink{}
	c := NewConsumer(src, listings, listings, sink)
	startConsumer(t, c)

	c.SetFilter(filter.Criteria{ClientID: "c1", Active: true, DealType: listing.DealSale})
	waitDrained(t, c)
	src.Publish(Event{Op: OpInsert, ListingID: "lst-1"})

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })
}

func TestConsumer_UnresolvableEventIsDropped(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{byID: map[string]listing.Listing{}}
	sink := &recordingSink{}
	c := NewConsumer(src, listings, listings, sink)
	startConsumer(t, c)

	c.SetFilter(filter.Criteria{ClientID: "c1", Active: true})
	waitDrained(t, c)
	src.Publish(Event{Op: OpInsert, ListingID: "lst-ghost"})

	// A second resolvable event proves the loop survived the first.
	l := listing.Listing{ID: "lst-ok", DealType: listing.DealSale}
	src.Publish(Event{Op: OpInsert, ListingID: l.ID, Listing: &l})

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })
	if got := sink.snapshot(); got[0].listingID != "lst-ok" {
		t.Errorf("expected only the resolvable listing, got %v", got)
	}
}

func TestConsumer_RemoveFilterStopsRouting(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{}
	sink := &recordingSink{}
	c := NewConsumer(src, listings, listings, sink)
	startConsumer(t, c)

	c.SetFilter(filter.Criteria{ClientID: "c1", Active: true})
	c.RemoveFilter("c1")
	waitDrained(t, c)

	l := listing.Listing{ID: "lst-1", DealType: listing.DealSale}
	src.Publish(Event{Op: OpInsert, ListingID: l.ID, Listing: &l})

	// A sentinel for a different client proves the first event was handled.
	c.SetFilter(filter.Criteria{ClientID: "c2", Active: true})
	waitDrained(t, c)
	src.Publish(Event{Op: OpInsert, ListingID: l.ID, Listing: &l})

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) >= 1 })
	for _, p := range sink.snapshot() {
		if p.clientID == "c1" {
			t.Errorf("expected removed filter to stop routing, got %v", p)
		}
	}
}

func TestConsumer_ChannelErrorEntersPollingFallback(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{results: []listing.Listing{
		{ID: "lst-1", DealType: listing.DealSale, Price: i64(250_000)},
	}}
	sink := &recordingSink{}
	c := NewConsumer(src, listings, listings, sink).WithPollInterval(10 * time.Millisecond)
	startConsumer(t, c)

	c.SetFilter(filter.Criteria{ClientID: "c1", Active: true, DealType: listing.DealSale})
	waitDrained(t, c)

	src.SetStatus(StatusChannelError)
	waitFor(t, time.Second, func() bool { return c.Degraded() })
	waitFor(t, time.Second, func() bool { return listings.searchCount() >= 2 })
	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) >= 1 })

	src.SetStatus(StatusSubscribed)
	waitFor(t, time.Second, func() bool { return !c.Degraded() })

	// Once recovered the ticker stops; the search count settles.
	settled := listings.searchCount()
	time.Sleep(50 * time.Millisecond)
	if after := listings.searchCount(); after > settled+1 {
		t.Errorf("expected polling to stop after recovery, searches went %d -> %d", settled, after)
	}
}

func TestConsumer_SourceCloseEndsRun(t *testing.T) {
	src := NewChannelSource(8)
	listings := &stubListings{}
	c := NewConsumer(src, listings, listings, &recordingSink{})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	src.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on source close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return after source close")
	}
}

package match

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultDrainInterval is the minimum spacing between deliveries so a burst of
// qualifying listings never lands on the viewer all at once.
const DefaultDrainInterval = 500 * time.Millisecond

// Deliverer receives one (client, listing) pair per drain tick. Implemented by
// PGStore.InsertPending.
type Deliverer interface {
	InsertPending(ctx context.Context, clientID, listingID string) (bool, error)
}

type queuedItem struct {
	clientID  string
	listingID string
}

// Batcher is a FIFO queue with a single timer-driven drain loop. Enqueue is
// cheap and non-blocking; at most one item reaches the store per interval and
// no two drain cycles ever run concurrently.
type Batcher struct {
	deliver  Deliverer
	interval time.Duration

	mu       sync.Mutex
	queue    []queuedItem
	inQueue  map[queuedItem]struct{}
	draining bool
	stopped  bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewBatcher(deliver Deliverer, interval time.Duration) *Batcher {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &Batcher{
		deliver:  deliver,
		interval: interval,
		inQueue:  make(map[queuedItem]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Enqueue appends the pair and kicks the drain loop if it is idle. A pair
// already waiting in the queue is dropped; a pair already pending in the store
// is dropped later by the idempotent insert.
func (b *Batcher) Enqueue(clientID, listingID string) {
	if clientID == "" || listingID == "" {
		return
	}
	item := queuedItem{clientID: clientID, listingID: listingID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if _, dup := b.inQueue[item]; dup {
		return
	}
	b.inQueue[item] = struct{}{}
	b.queue = append(b.queue, item)

	if !b.draining {
		b.draining = true
		go b.drain()
	}
}

// Len reports how many items are waiting.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stop drops everything still queued without delivering it and prevents
// further enqueues.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.queue = nil
		b.inQueue = make(map[queuedItem]struct{})
		b.mu.Unlock()
		close(b.stopCh)
	})
}

func (b *Batcher) drain() {
	for {
		b.mu.Lock()
		if b.stopped || len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		item := b.queue[0]
		b.queue = b.queue[1:]
		delete(b.inQueue, item)
		b.mu.Unlock()

		inserted, err := b.deliver.InsertPending(context.Background(), item.clientID, item.listingID)
		if err != nil {
			log.Printf("batcher: deliver %s/%s: %v", item.clientID, item.listingID, err)
			continue
		}
		if !inserted {
			// Already pending for this client; dropped silently without
			// consuming a tick.
			continue
		}

		timer := time.NewTimer(b.interval)
		select {
		case <-timer.C:
		case <-b.stopCh:
			timer.Stop()
			b.mu.Lock()
			b.draining = false
			b.mu.Unlock()
			return
		}
	}
}

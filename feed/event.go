package feed

import "imoflow/listing"

type Op string

const OpInsert Op = "insert"

// Event is one listing-change notification from the realtime transport. The
// payload may be partial: Listing nil with only ListingID set, in which case
// the consumer back-fills by direct fetch.
type Event struct {
	Op        Op
	ListingID string
	Listing   *listing.Listing
}

// Status mirrors the transport's subscription health signal. Anything other
// than SUBSCRIBED flips the consumer into polling fallback.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
)

// Source is the boundary to the realtime transport: typed events and health
// signals on channels, per-subscription ordering.
type Source interface {
	Events() <-chan Event
	Statuses() <-chan Status
	Close() error
}

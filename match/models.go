package match

import (
	"errors"
	"time"
)

// State is the derived lifecycle of a match. It is computed from the seen and
// is_notified flags rather than stored directly.
type State string

const (
	StatePending  State = "pending"
	StateCurated  State = "curated"
	StateArchived State = "archived"
)

var (
	ErrNotFound     = errors.New("match: not found")
	ErrInvalidState = errors.New("match: invalid state")
)

// Match links one client to one listing that satisfied the client's criteria.
// Created at most once per (client, listing) pair.
type Match struct {
	ID         string
	ClientID   string
	ListingID  string
	Seen       bool
	IsNotified bool
	CreatedAt  time.Time
}

// State derives the lifecycle state from the flag pair.
func (m Match) State() State {
	switch {
	case !m.Seen:
		return StatePending
	case m.IsNotified:
		return StateCurated
	default:
		return StateArchived
	}
}

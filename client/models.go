package client

import (
	"errors"
	"time"
)

// Status is a client's pipeline stage.
type Status string

const (
	StatusNewMatch       Status = "new_match"
	StatusContacted      Status = "contacted"
	StatusInConversation Status = "in_conversation"
	StatusAwaitingReply  Status = "awaiting_reply"
	StatusVisitScheduled Status = "visit_scheduled"
	StatusProposal       Status = "proposal"
	StatusClosed         Status = "closed"
)

// Statuses returns the pipeline stages in their fixed order.
func Statuses() []Status {
	return []Status{
		StatusNewMatch,
		StatusContacted,
		StatusInConversation,
		StatusAwaitingReply,
		StatusVisitScheduled,
		StatusProposal,
		StatusClosed,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusNewMatch, StatusContacted, StatusInConversation, StatusAwaitingReply,
		StatusVisitScheduled, StatusProposal, StatusClosed:
		return true
	default:
		return false
	}
}

// Outcome qualifies a closed client.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

func (o Outcome) Valid() bool {
	return o == OutcomeWon || o == OutcomeLost
}

var ErrNotFound = errors.New("client: not found")

// Client is a brokerage relationship tracked through the pipeline.
type Client struct {
	ID                 string
	OrgID              string
	UserID             string
	Name               string
	Email              *string
	Phone              *string
	Note               string
	Status             Status
	Outcome            *Outcome
	NextActionAt       *time.Time
	ChaseDueAt         *time.Time
	LastContactAt      *time.Time
	LastReplyAt        *time.Time
	VisitAt            *time.Time
	VisitNotes         string
	ProposalValue      *int64
	ProposalValidUntil *time.Time
	LostReason         *string
	LostDetail         *string
	UnseenCount        int
	CreatedAt          time.Time
}

// Active reports whether the client still appears in day-to-day views.
func (c Client) Active() bool {
	return c.Status != StatusClosed
}

// DueAt resolves the canonical follow-up due date: next_action_at first,
// chase_due_at as the fallback.
func (c Client) DueAt() *time.Time {
	if c.NextActionAt != nil {
		return c.NextActionAt
	}
	return c.ChaseDueAt
}

// Overdue reports whether a pending contact has slipped past its due date.
func (c Client) Overdue(now time.Time) bool {
	due := c.DueAt()
	return c.Active() && due != nil && due.Before(now)
}

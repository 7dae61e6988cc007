package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"imoflow/client"
	"imoflow/timeline"
)

const (
	contactFollowUp  = 24 * time.Hour
	awaitingFollowUp = 48 * time.Hour

	// DefaultTimeout bounds a transition against the wall clock. On expiry the
	// operation is reported failed; the caller must not assume it did not
	// happen remotely.
	DefaultTimeout = 10 * time.Second
)

var (
	ErrUnknownStatus        = errors.New("pipeline: unknown target status")
	ErrTransitionInFlight   = errors.New("pipeline: transition already in flight for client")
	ErrMissingVisitDateTime = errors.New("pipeline: missing visit datetime")
	ErrMissingProposalValue = errors.New("pipeline: missing proposal value")
	ErrMissingOutcome       = errors.New("pipeline: missing closed outcome")
	ErrMissingLostReason    = errors.New("pipeline: missing lost reason")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ClientStore is the persistence surface the machine drives.
type ClientStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (client.Client, error)
	ApplyTransition(ctx context.Context, tx pgx.Tx, c client.Client) error
	NextActive(ctx context.Context, userID, excludeID string) (client.Client, error)
}

// TimelineWriter appends the audit event inside the transition's transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, ev timeline.Event) error
}

// CloseObserver is told when a client closes so live matching stops routing
// listings to it. Satisfied by feed.Consumer.
type CloseObserver interface {
	RemoveFilter(clientID string)
}

// TransitionParams carries the operator's requested stage change and whatever
// stage-specific data came with it.
type TransitionParams struct {
	ClientID string
	ActorID  string
	Target   client.Status

	Note               string
	FollowUpAt         *time.Time
	VisitAt            *time.Time
	VisitNotes         string
	ProposalValue      *int64
	ProposalValidUntil *time.Time
	Outcome            client.Outcome
	LostReason         string
	LostDetail         string
}

// TransitionResult is the persisted client plus, when the transition closed
// the client, the next active one to surface to the operator.
type TransitionResult struct {
	Client client.Client
	Next   *client.Client
}

// Machine advances clients through the pipeline. At most one transition per
// client is in flight at a time; a concurrent request for the same client
// fails fast instead of queueing. Independent clients transition freely.
type Machine struct {
	pool     TxBeginner
	clients  ClientStore
	timeline TimelineWriter
	closeObs CloseObserver
	now      func() time.Time
	timeout  time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewMachine(pool TxBeginner, clients ClientStore, tl TimelineWriter) *Machine {
	return &Machine{
		pool:     pool,
		clients:  clients,
		timeline: tl,
		now:      time.Now,
		timeout:  DefaultTimeout,
		inflight: make(map[string]struct{}),
	}
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

func (m *Machine) WithTimeout(d time.Duration) *Machine {
	m.timeout = d
	return m
}

func (m *Machine) WithCloseObserver(o CloseObserver) *Machine {
	m.closeObs = o
	return m
}

// Transition validates the target stage's requirements, computes derived
// scheduling fields, persists the row, and appends exactly one timeline event
// in the same transaction. Validation failures change nothing.
func (m *Machine) Transition(ctx context.Context, p TransitionParams) (TransitionResult, error) {
	if p.ClientID == "" {
		return TransitionResult{}, fmt.Errorf("pipeline: missing client id")
	}
	if !p.Target.Valid() {
		return TransitionResult{}, ErrUnknownStatus
	}
	if err := validateTarget(p); err != nil {
		return TransitionResult{}, err
	}

	if !m.acquire(p.ClientID) {
		return TransitionResult{}, ErrTransitionInFlight
	}
	defer m.release(p.ClientID)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cl, err := m.clients.GetForUpdate(ctx, tx, p.ClientID)
	if err != nil {
		return TransitionResult{}, err
	}

	from := cl.Status
	now := m.now()
	payload := m.apply(&cl, p, now)

	if err := m.clients.ApplyTransition(ctx, tx, cl); err != nil {
		return TransitionResult{}, err
	}

	eventType := timeline.EventStatusChange
	if from == p.Target {
		eventType = timeline.EventPipelineActivity
	}

	var actor *string
	if p.ActorID != "" {
		actor = &p.ActorID
	}
	ev := timeline.Event{
		ClientID:   cl.ID,
		EventType:  eventType,
		FromStatus: from,
		ToStatus:   p.Target,
		ActorID:    actor,
		Payload:    payload,
	}
	if err := m.timeline.Append(ctx, tx, ev); err != nil {
		return TransitionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransitionResult{}, fmt.Errorf("pipeline: commit transition: %w", err)
	}

	result := TransitionResult{Client: cl}
	if p.Target == client.StatusClosed {
		// A closed client leaves active matching immediately.
		if m.closeObs != nil {
			m.closeObs.RemoveFilter(cl.ID)
		}
		next, err := m.clients.NextActive(ctx, cl.UserID, cl.ID)
		if err == nil {
			result.Next = &next
		} else if !errors.Is(err, client.ErrNotFound) {
			return result, err
		}
	}
	return result, nil
}

// validateTarget enforces per-target required fields before anything touches
// the store.
func validateTarget(p TransitionParams) error {
	switch p.Target {
	case client.StatusVisitScheduled:
		if p.VisitAt == nil || p.VisitAt.IsZero() {
			return ErrMissingVisitDateTime
		}
	case client.StatusProposal:
		if p.ProposalValue == nil {
			return ErrMissingProposalValue
		}
	case client.StatusClosed:
		if !p.Outcome.Valid() {
			return ErrMissingOutcome
		}
		if p.Outcome == client.OutcomeLost && strings.TrimSpace(p.LostReason) == "" {
			return ErrMissingLostReason
		}
	}
	return nil
}

// apply mutates the client per the target stage's rules and returns the
// payload of everything the transition set, for the timeline event.
func (m *Machine) apply(cl *client.Client, p TransitionParams, now time.Time) map[string]any {
	payload := map[string]any{
		"from_status": string(cl.Status),
		"to_status":   string(p.Target),
	}
	if p.Note != "" {
		payload["note"] = p.Note
	}

	// An explicit follow-up applies to any stage, including activity-only
	// updates.
	if p.FollowUpAt != nil {
		cl.NextActionAt = p.FollowUpAt
		cl.ChaseDueAt = p.FollowUpAt
		payload["next_action_at"] = p.FollowUpAt.Format(time.RFC3339)
	}

	// Outcome and lost fields are only meaningful while closed; leaving the
	// terminal stage clears them so the row invariant holds.
	if p.Target != client.StatusClosed {
		cl.Outcome = nil
		cl.LostReason = nil
		cl.LostDetail = nil
	}

	switch p.Target {
	case client.StatusNewMatch:
		// No derived fields.
	case client.StatusContacted:
		due := m.resolveFollowUp(p, now, contactFollowUp)
		cl.NextActionAt = &due
		cl.ChaseDueAt = &due
		cl.LastContactAt = &now
		payload["next_action_at"] = due.Format(time.RFC3339)
		payload["last_contact_at"] = now.Format(time.RFC3339)
	case client.StatusAwaitingReply:
		due := m.resolveFollowUp(p, now, awaitingFollowUp)
		cl.NextActionAt = &due
		cl.ChaseDueAt = &due
		cl.LastContactAt = &now
		payload["next_action_at"] = due.Format(time.RFC3339)
		payload["last_contact_at"] = now.Format(time.RFC3339)
	case client.StatusInConversation:
		cl.LastReplyAt = &now
		payload["last_reply_at"] = now.Format(time.RFC3339)
	case client.StatusVisitScheduled:
		cl.VisitAt = p.VisitAt
		cl.VisitNotes = p.VisitNotes
		payload["visit_at"] = p.VisitAt.Format(time.RFC3339)
		if p.VisitNotes != "" {
			payload["visit_notes"] = p.VisitNotes
		}
	case client.StatusProposal:
		cl.ProposalValue = p.ProposalValue
		cl.ProposalValidUntil = p.ProposalValidUntil
		payload["proposal_value"] = *p.ProposalValue
		if p.ProposalValidUntil != nil {
			payload["proposal_valid_until"] = p.ProposalValidUntil.Format(time.RFC3339)
		}
	case client.StatusClosed:
		outcome := p.Outcome
		cl.Outcome = &outcome
		payload["outcome"] = string(outcome)
		if outcome == client.OutcomeLost {
			reason := strings.TrimSpace(p.LostReason)
			cl.LostReason = &reason
			payload["lost_reason"] = reason
			if p.LostDetail != "" {
				detail := p.LostDetail
				cl.LostDetail = &detail
				payload["lost_detail"] = p.LostDetail
			}
		} else {
			cl.LostReason = nil
			cl.LostDetail = nil
		}
	}

	cl.Status = p.Target
	return payload
}

func (m *Machine) resolveFollowUp(p TransitionParams, now time.Time, auto time.Duration) time.Time {
	if p.FollowUpAt != nil {
		return *p.FollowUpAt
	}
	return now.Add(auto)
}

func (m *Machine) acquire(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[clientID]; busy {
		return false
	}
	m.inflight[clientID] = struct{}{}
	return true
}

func (m *Machine) release(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, clientID)
}

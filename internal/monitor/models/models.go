// Package models holds the core types of the publication monitoring engine.
// They are transport- and storage-agnostic so stores, the coordinator and the
// dispatcher can share them without import cycles.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority classifies how urgently a publication should reach the
// practitioner. Derived from content analysis, never from the source.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// MonitoredIdentity is the monitoring configuration for one practitioner:
// bar registration plus optional sealed-case access. Owned by the
// configuration collaborator; the engine only reads it and advances
// LastRunAt / attention flags.
type MonitoredIdentity struct {
	ID           uuid.UUID
	BarNumber    string
	Jurisdiction string // two-letter bar jurisdiction, e.g. "SP"

	// Optional sealed-case scope. When CaseNumber is set the registry query
	// narrows to that case; SealedAccessPassword unlocks sealed dockets.
	CaseNumber           string
	SealedAccessPassword string

	PollingInterval time.Duration
	LookbackDays    int

	// Active is a soft-disable: identities are never physically deleted so
	// the seen-set history stays intact.
	Active bool

	// NeedsAttention is raised on terminal fetch failures and surfaced to
	// the configuration collaborator.
	NeedsAttention  bool
	AttentionReason string

	LastRunAt *time.Time
}

// Due reports whether the identity should be scheduled for a run.
func (m MonitoredIdentity) Due(now time.Time) bool {
	if !m.Active {
		return false
	}
	if m.LastRunAt == nil {
		return true
	}
	return !now.Before(m.LastRunAt.Add(m.PollingInterval))
}

// Window computes the date window for the next fetch. The first run looks
// back LookbackDays; subsequent runs start one day before the last run so a
// publication landing near the boundary is never missed. The overlap is safe
// because seen-set commits are idempotent per natural key.
func (m MonitoredIdentity) Window(now time.Time) (start, end time.Time) {
	end = now
	if m.LastRunAt == nil {
		days := m.LookbackDays
		if days <= 0 {
			days = DefaultLookbackDays
		}
		return now.AddDate(0, 0, -days), end
	}
	return m.LastRunAt.AddDate(0, 0, -1), end
}

// Defaults mirror the production monitoring configuration.
const (
	DefaultPollingInterval = 24 * time.Hour
	DefaultLookbackDays    = 7
)

// PublicationPayload is the normalized snapshot of one gazette publication.
// It is stored verbatim with the record and carried on the event.
type PublicationPayload struct {
	CaseNumber  string    `json:"case_number"`
	Court       string    `json:"court"`
	CourtBody   string    `json:"court_body"`
	Gazette     string    `json:"gazette,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Content     string    `json:"content"`
	CaseURL     string    `json:"case_url,omitempty"`

	// Content analysis results.
	Priority Priority `json:"priority"`
	Keywords []string `json:"keywords,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// PublicationCandidate is a transient, per-fetch value produced by the
// extractor. It is never persisted directly; the diff engine promotes new
// candidates to PublicationRecords.
type PublicationCandidate struct {
	NaturalKey string
	Payload    PublicationPayload
	ObservedAt time.Time
}

// PublicationRecord is the durable proof that a publication was seen for an
// identity. (IdentityID, NaturalKey) is unique, created exactly once, never
// updated, never deleted.
type PublicationRecord struct {
	IdentityID  uuid.UUID
	NaturalKey  string
	FirstSeenAt time.Time
	Payload     PublicationPayload
}

// PublicationEvent is emitted 1:1 with each committed record, inside the
// same transaction. Delivery is at-least-once and tracked separately from
// the record.
type PublicationEvent struct {
	IdentityID  uuid.UUID
	NaturalKey  string
	Payload     PublicationPayload
	EmittedAt   time.Time
	DeliveredAt *time.Time
}

// RunLease grants one worker exclusive access to an identity's run. At most
// one non-expired lease exists per identity. A crashed worker's lease is
// reclaimed by expiry.
type RunLease struct {
	IdentityID uuid.UUID
	OwnerToken uuid.UUID
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease deadline has passed.
func (l RunLease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// RunStatus is the terminal state of one monitoring run.
type RunStatus string

const (
	RunSucceeded        RunStatus = "succeeded"
	RunEmpty            RunStatus = "empty"
	RunTransientFailure RunStatus = "transient_failure"
	RunTerminalFailure  RunStatus = "terminal_failure"
)

// RunLog records the outcome of one completed run for operational history.
type RunLog struct {
	IdentityID uuid.UUID
	ExecutedAt time.Time
	Status     RunStatus
	Found      int
	New        int
	Error      string
}

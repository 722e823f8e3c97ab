package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusKind identifies a task lifecycle state.
type StatusKind string

// Task status kinds.
const (
	KindPending    StatusKind = "pending"
	KindProcessing StatusKind = "processing"
	KindCompleted  StatusKind = "completed"
	KindFailed     StatusKind = "failed"
)

// Status is a task lifecycle state. Reason is only ever set on KindFailed.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Pending is the status assigned at submission.
func Pending() Status { return Status{Kind: KindPending} }

// Processing is the status set when a worker picks a task up.
func Processing() Status { return Status{Kind: KindProcessing} }

// Completed is the successful terminal status.
func Completed() Status { return Status{Kind: KindCompleted} }

// Failed is the unsuccessful terminal status carrying the failure reason.
func Failed(reason string) Status { return Status{Kind: KindFailed, Reason: reason} }

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s.Kind == KindCompleted || s.Kind == KindFailed
}

func (s Status) String() string {
	if s.Kind == KindFailed && s.Reason != "" {
		return fmt.Sprintf("%s: %s", s.Kind, s.Reason)
	}
	return string(s.Kind)
}

type statusJSON struct {
	Kind   StatusKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

// MarshalJSON encodes s as {"kind": ..., "reason": ...}.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{Kind: s.Kind, Reason: s.Reason})
}

// UnmarshalJSON decodes a status, rejecting unknown kinds and reasons on
// non-failed kinds.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v statusJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case KindPending, KindProcessing, KindCompleted:
		if v.Reason != "" {
			return fmt.Errorf("status %q does not carry a reason", v.Kind)
		}
	case KindFailed:
	default:
		return fmt.Errorf("unknown status kind %q", v.Kind)
	}
	*s = Status{Kind: v.Kind, Reason: v.Reason}
	return nil
}

// validTransitions maps each status kind to the kinds it may transition to.
// Terminal kinds have no entry.
var validTransitions = map[StatusKind]map[StatusKind]bool{
	KindPending: {
		KindProcessing: true,
	},
	KindProcessing: {
		KindCompleted: true,
		KindFailed:    true,
	},
}

// ValidTransition reports whether a task may move from one status to another.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from.Kind]
	if !ok {
		return false
	}
	return targets[to.Kind]
}

// Task is a unit of submitted work tracked by identity and lifecycle status.
// Priority is stored and returned unchanged; it does not affect dispatch order.
type Task struct {
	ID         uuid.UUID `json:"id"`
	BatchID    string    `json:"batch_id,omitempty"`
	Name       string    `json:"name"`
	Priority   int       `json:"priority"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns how long the task spent processing, or zero if it has not
// reached a terminal status.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

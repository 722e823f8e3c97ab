package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewTaskID generates a random (v4) task identity.
func NewTaskID() uuid.UUID {
	return uuid.New()
}

// ParseTaskID parses the canonical string form of a task identity.
func ParseTaskID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// NewBatchID generates a ULID string identifying one batch submission.
// ULIDs sort by creation time, so batch listings order naturally.
func NewBatchID() string {
	return ulid.Make().String()
}

package checkpoint

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint has been recorded for a source.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint records the highest fully processed position for one scan source.
// Uses meddler tags for automatic struct-to-db mapping.
type Checkpoint struct {
	SourceID     string    `meddler:"source_id,pk" json:"source_id"`
	LastPosition uint64    `meddler:"last_position" json:"last_position"`
	UpdatedAt    time.Time `meddler:"updated_at,utctime" json:"updated_at"`
}

// Store defines the interface for persisting per-source scan checkpoints.
// This abstraction allows for easier testing and alternative implementations.
type Store interface {
	// Get returns the checkpoint for the given source.
	// Returns ErrNotFound when the source has never been checkpointed.
	Get(sourceID string) (*Checkpoint, error)

	// Save records position as fully processed for the source.
	// Positions never move backwards: saving a position lower than the
	// stored one leaves the checkpoint unchanged.
	Save(sourceID string, position uint64) error

	// All returns every stored checkpoint ordered by source ID.
	All() ([]*Checkpoint, error)
}

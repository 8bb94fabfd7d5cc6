package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/russross/meddler"

	"github.com/veltran/marketsync/internal/common"
	"github.com/veltran/marketsync/internal/db"
	"github.com/veltran/marketsync/internal/logger"
	pkgcheckpoint "github.com/veltran/marketsync/pkg/checkpoint"
)

// Compile-time check to ensure Store implements pkgcheckpoint.Store interface.
var _ pkgcheckpoint.Store = (*Store)(nil)

// Checkpoint is a type alias for the public Checkpoint type.
type Checkpoint = pkgcheckpoint.Checkpoint

// Store persists scan checkpoints in SQLite.
type Store struct {
	db          *sql.DB
	log         *logger.Logger
	maintenance db.Maintenance
}

// NewStore creates a new SQLite-backed checkpoint store.
func NewStore(sqlDB *sql.DB, log *logger.Logger, maintenance db.Maintenance) *Store {
	return &Store{
		db:          sqlDB,
		log:         log.WithComponent(common.ComponentCheckpoint),
		maintenance: maintenance,
	}
}

// Get returns the checkpoint for the given source, or ErrNotFound.
func (s *Store) Get(sourceID string) (*Checkpoint, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	var cp Checkpoint
	err := meddler.QueryRow(s.db, &cp, `SELECT * FROM checkpoints WHERE source_id = ?`, sourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgcheckpoint.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint for source %s: %w", sourceID, err)
	}

	return &cp, nil
}

// Save records position as fully processed for the source.
// The upsert only applies when position is above the stored one, so a
// checkpoint can never move backwards.
func (s *Store) Save(sourceID string, position uint64) error {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	const query = `
		INSERT INTO checkpoints (source_id, last_position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_position = excluded.last_position,
			updated_at = excluded.updated_at
		WHERE excluded.last_position > checkpoints.last_position
	`

	res, err := s.db.Exec(query, sourceID, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for source %s: %w", sourceID, err)
	}

	// The WHERE clause turns a backwards save into a no-op; only report
	// positions that were actually stored.
	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		CheckpointWritesInc(sourceID)
		CheckpointPositionLog(sourceID, position)
		s.log.Debugf("saved checkpoint: source=%s, position=%d", sourceID, position)
	}

	return nil
}

// All returns every stored checkpoint ordered by source ID.
func (s *Store) All() ([]*Checkpoint, error) {
	if s.maintenance != nil {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()
	}

	var cps []*Checkpoint
	err := meddler.QueryAll(s.db, &cps, `SELECT * FROM checkpoints ORDER BY source_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	return cps, nil
}

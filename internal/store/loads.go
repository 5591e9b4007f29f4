package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// LoadOutcome is the result of a model load request.
type LoadOutcome string

const (
	LoadOutcomeLoaded   LoadOutcome = "loaded"
	LoadOutcomeUnloaded LoadOutcome = "unloaded"
	LoadOutcomeFailed   LoadOutcome = "failed"
	LoadOutcomeRejected LoadOutcome = "rejected"
)

// LoadEvent records one model load request.
type LoadEvent struct {
	ID        string      `json:"id"`
	ModelID   int         `json:"model_id"`
	Backend   string      `json:"backend"`
	Outcome   LoadOutcome `json:"outcome"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// LoadRepository provides access to the model load history.
type LoadRepository struct {
	db *sql.DB
}

// Loads returns the load history repository for this store.
func (s *Store) Loads() *LoadRepository {
	return &LoadRepository{db: s.db}
}

// Record inserts e, assigning an ID and timestamp if they are unset.
func (r *LoadRepository) Record(e *LoadEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO model_loads (id, model_id, backend, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ModelID, e.Backend, string(e.Outcome), e.Error, e.CreatedAt,
	)
	return err
}

// Recent returns up to limit events, newest first.
func (r *LoadRepository) Recent(limit int) ([]LoadEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		`SELECT id, model_id, backend, outcome, error, created_at
		 FROM model_loads ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []LoadEvent
	for rows.Next() {
		var e LoadEvent
		var outcome string
		if err := rows.Scan(&e.ID, &e.ModelID, &e.Backend, &outcome, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Outcome = LoadOutcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}

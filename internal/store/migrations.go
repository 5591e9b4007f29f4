package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - runtime configuration restored at startup
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Model loads table - history of every model load request
		`CREATE TABLE IF NOT EXISTS model_loads (
			id TEXT PRIMARY KEY,
			model_id INTEGER NOT NULL,
			backend TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK(outcome IN ('loaded', 'unloaded', 'failed', 'rejected')),
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_model_loads_created_at ON model_loads(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// ErrNothingToRollback is returned by Rollback when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration represents a database migration
type Migration struct {
	Name string
	// RequiresTimescale marks migrations that only run on TimescaleDB
	RequiresTimescale bool
	UpSQL             string
	DownSQL           string
}

// All returns every migration in apply order
func All() []*Migration {
	return []*Migration{
		TelemetrySchema,
		TimescalePolicies,
	}
}

// Portable returns the migrations that run on plain PostgreSQL
func Portable() []*Migration {
	var out []*Migration
	for _, m := range All() {
		if !m.RequiresTimescale {
			out = append(out, m)
		}
	}
	return out
}

// Migrator manages database migrations
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// Applied returns the set of applied migration names
func (m *Migrator) Applied() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT name FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations from list that are not applied yet
func (m *Migrator) Pending(list []*Migration) ([]*Migration, error) {
	applied, err := m.Applied()
	if err != nil {
		return nil, err
	}
	var pending []*Migration
	for _, mig := range list {
		if !applied[mig.Name] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// run executes one migration body and its bookkeeping statement in a transaction
func (m *Migrator) run(name, body, record string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.Exec(body); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec(record, name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}

	return tx.Commit()
}

// Apply applies a single migration
func (m *Migrator) Apply(mig *Migration) error {
	return m.run(mig.Name, mig.UpSQL, "INSERT INTO schema_migrations (name) VALUES ($1)")
}

// Revert rolls back a single migration
func (m *Migrator) Revert(mig *Migration) error {
	return m.run(mig.Name, mig.DownSQL, "DELETE FROM schema_migrations WHERE name = $1")
}

// Migrate applies all pending migrations in order
func (m *Migrator) Migrate(list []*Migration) error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	pending, err := m.Pending(list)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, mig := range pending {
		if err := m.Apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", mig.Name, err)
		}
		log.Printf("Applied migration: %s", mig.Name)
	}

	return nil
}

// Rollback rolls back the most recent applied migration in list
func (m *Migrator) Rollback(list []*Migration) error {
	applied, err := m.Applied()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(list) - 1; i >= 0; i-- {
		if applied[list[i].Name] {
			last = list[i]
			break
		}
	}
	if last == nil {
		return ErrNothingToRollback
	}

	if err := m.Revert(last); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}

	log.Printf("Rolled back migration: %s", last.Name)
	return nil
}

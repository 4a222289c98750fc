package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq" // postgres driver

	"github.com/launix-de/chronostore/internal/registry"
)

// PostgresStore mirrors MySQLStore over a Postgres database, differing
// only in placeholder syntax ($1.. vs ?) and upsert clause (ON CONFLICT
// vs ON DUPLICATE KEY UPDATE); same akumuli_volumes/akumuli_series/
// akumuli_rescue_points-derived schema.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS volumes (
			id INTEGER PRIMARY KEY,
			path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS series (
			series_id BIGINT PRIMARY KEY,
			metric TEXT NOT NULL,
			tag_block TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rescue_points (
			series_id BIGINT PRIMARY KEY,
			%s
		)`, rescueColumnDefs("BIGINT")),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: apply postgres schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadVolumes() ([]VolumeDescriptor, error) {
	rows, err := s.db.Query("SELECT id, path FROM volumes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("catalog: load volumes: %w", err)
	}
	defer rows.Close()

	var out []VolumeDescriptor
	for rows.Next() {
		var d VolumeDescriptor
		if err := rows.Scan(&d.ID, &d.Path); err != nil {
			return nil, fmt.Errorf("catalog: scan volume row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LoadSeriesNames() ([]registry.Tuple, error) {
	rows, err := s.db.Query("SELECT series_id, metric, tag_block FROM series")
	if err != nil {
		return nil, fmt.Errorf("catalog: load series names: %w", err)
	}
	defer rows.Close()

	var out []registry.Tuple
	for rows.Next() {
		var t registry.Tuple
		if err := rows.Scan(&t.SeriesID, &t.Metric, &t.TagBlock); err != nil {
			return nil, fmt.Errorf("catalog: scan series row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendSeriesNames(tuples []registry.Tuple) error {
	if len(tuples) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin append txn: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO series (series_id, metric, tag_block) VALUES ($1, $2, $3)
		ON CONFLICT (series_id) DO UPDATE SET metric = EXCLUDED.metric, tag_block = EXCLUDED.tag_block`)
	if err != nil {
		return fmt.Errorf("catalog: prepare series insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tuples {
		if _, err := stmt.ExecContext(ctx, t.SeriesID, t.Metric, t.TagBlock); err != nil {
			return fmt.Errorf("catalog: insert series %d: %w", t.SeriesID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit append txn: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) UpsertRescuePoints(points []RescuePoint) error {
	if len(points) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin rescue txn: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cols := rescueColumnNames()
	placeholders := make([]string, len(cols))
	updates := make([]string, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates[i-1] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
		}
	}
	query := fmt.Sprintf(
		"INSERT INTO rescue_points (%s) VALUES (%s) ON CONFLICT (series_id) DO UPDATE SET %s",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("catalog: prepare rescue upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		args := rescueArgs(p)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("catalog: upsert rescue point for series %d: %w", p.SeriesID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit rescue txn: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

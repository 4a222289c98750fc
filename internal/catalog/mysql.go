package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver

	"github.com/launix-de/chronostore/internal/registry"
)

// MySQLStore is a Store backed by a MySQL/MariaDB database, grounded on
// libakumuli/metadatastorage.cpp's akumuli_volumes/akumuli_series/
// akumuli_rescue_points tables and calvinalkan-agent-task/internal/store's
// database/sql idiom (context-first methods, fmt.Errorf("%s: %w") wrapping,
// ExecContext/QueryContext, prepared statements for hot inserts).
type MySQLStore struct {
	db *sql.DB
}

// OpenMySQL opens dsn (a go-sql-driver/mysql DSN) and ensures the catalog
// schema exists.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping mysql: %w", err)
	}
	s := &MySQLStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS volumes (
			id INTEGER PRIMARY KEY,
			path VARCHAR(1024) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS series (
			series_id BIGINT UNSIGNED PRIMARY KEY,
			metric VARCHAR(512) NOT NULL,
			tag_block VARCHAR(2048) NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rescue_points (
			series_id BIGINT UNSIGNED PRIMARY KEY,
			%s
		)`, rescueColumnDefs("BIGINT UNSIGNED")),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: apply mysql schema: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) LoadVolumes() ([]VolumeDescriptor, error) {
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

func (s *MySQLStore) LoadSeriesNames() ([]registry.Tuple, error) {
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

// AppendSeriesNames inserts a batch of ≤500 tuples (spec.md §4.4 persistence
// contract) in one transaction, mirroring metadatastorage.cpp's
// insert_new_names batching.
func (s *MySQLStore) AppendSeriesNames(tuples []registry.Tuple) error {
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
		INSERT INTO series (series_id, metric, tag_block) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE metric = VALUES(metric), tag_block = VALUES(tag_block)`)
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

// UpsertRescuePoints mirrors metadatastorage.cpp's upsert_rescue_points:
// "INSERT ... ON DUPLICATE KEY UPDATE" over the fixed addr0..addr7 columns.
func (s *MySQLStore) UpsertRescuePoints(points []RescuePoint) error {
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
	placeholders := "?, " + strings.TrimSuffix(strings.Repeat("?, ", rescueAddrSlots), ", ")
	updates := make([]string, rescueAddrSlots)
	for i, c := range cols[1:] {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	query := fmt.Sprintf(
		"INSERT INTO rescue_points (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "),
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

func (s *MySQLStore) Close() error { return s.db.Close() }

package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"royalty-exchange/go-backend/internal/storage/checkpoint/migrations"
	"royalty-exchange/go-backend/internal/storage/sqlitemigrate"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("checkpoint: journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, runID string) (Checkpoint, bool, error) {
	if strings.TrimSpace(runID) == "" {
		return Checkpoint{}, false, ErrRunIDRequired
	}
	var (
		cp      Checkpoint
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, state, enforcer_app, market_app, asset_id, pending_state, pending_group, updated_at
FROM runs
WHERE run_id = ?
`, runID).Scan(&cp.RunID, &cp.State, &cp.EnforcerApp, &cp.MarketApp, &cp.AssetID, &cp.Pending.State, &cp.Pending.GroupID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoint: load %s: %w", runID, err)
	}
	cp.UpdatedAt = time.UnixMilli(updated).UTC()
	return cp, true, nil
}

func (s *Store) Save(ctx context.Context, cp Checkpoint, tr Transition) error {
	if err := validate(cp); err != nil {
		return err
	}
	now := time.Now().UTC()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	cp.Pending = Pending{}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin: %w", err)
	}
	if err := upsertRun(ctx, tx, cp); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO transitions (run_id, state, round, group_id, created_at)
VALUES (?, ?, ?, ?, ?)
`, cp.RunID, cp.State, tr.Round, tr.GroupID, tr.CreatedAt.UnixMilli()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("checkpoint: record transition %s: %w", cp.State, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: commit: %w", err)
	}
	return nil
}

func (s *Store) SavePending(ctx context.Context, cp Checkpoint) error {
	if err := validate(cp); err != nil {
		return err
	}
	cp.UpdatedAt = time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin: %w", err)
	}
	if err := upsertRun(ctx, tx, cp); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checkpoint: commit: %w", err)
	}
	return nil
}

func validate(cp Checkpoint) error {
	if strings.TrimSpace(cp.RunID) == "" {
		return ErrRunIDRequired
	}
	if cp.State == "" {
		return errors.New("checkpoint: state is required")
	}
	return nil
}

func upsertRun(ctx context.Context, tx *sql.Tx, cp Checkpoint) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, state, enforcer_app, market_app, asset_id, pending_state, pending_group, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	state = excluded.state,
	enforcer_app = excluded.enforcer_app,
	market_app = excluded.market_app,
	asset_id = excluded.asset_id,
	pending_state = excluded.pending_state,
	pending_group = excluded.pending_group,
	updated_at = excluded.updated_at
`, cp.RunID, cp.State, cp.EnforcerApp, cp.MarketApp, cp.AssetID, cp.Pending.State, cp.Pending.GroupID, cp.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("checkpoint: save run %s: %w", cp.RunID, err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, runID string) ([]Transition, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrRunIDRequired
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT state, round, group_id, created_at
FROM transitions
WHERE run_id = ?
ORDER BY id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: history %s: %w", runID, err)
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var (
			tr      Transition
			created int64
		)
		if err := rows.Scan(&tr.State, &tr.Round, &tr.GroupID, &created); err != nil {
			return nil, fmt.Errorf("checkpoint: scan transition: %w", err)
		}
		tr.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: iterate transitions: %w", err)
	}
	return out, nil
}

var _ Journal = (*Store)(nil)

package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/rewind/internal/core/ecs"
)

// ChecksumEntry is the world digest observed after a tick ran.
type ChecksumEntry struct {
	Tick ecs.Tick
	Sum  ecs.Digest
}

// CorrectionEntry records one resimulation applied during a run.
type CorrectionEntry struct {
	At         ecs.Tick
	RollbackTo ecs.Tick
	Inputs     int
	Before     ecs.Digest
	After      ecs.Digest
}

// JournalRepo stores per-run checksum journals so two runs of the same
// scenario can be compared for desync.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// StartRun inserts a run row and returns its id.
func (r *JournalRepo) StartRun(ctx context.Context, scenario string, retention int) (int64, error) {
	var id int64
	err := r.db.pool.QueryRow(ctx,
		`INSERT INTO runs (scenario, retention_ticks) VALUES ($1, $2) RETURNING id`,
		scenario, retention,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// WriteChecksums stores a batch of checksums in a single transaction. A
// tick written twice keeps the latest digest.
func (r *JournalRepo) WriteChecksums(ctx context.Context, run int64, entries []ChecksumEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("checksums begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO run_checksums (run_id, tick, checksum) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, tick) DO UPDATE SET checksum = EXCLUDED.checksum`,
			run, int64(e.Tick), e.Sum[:],
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("checksums insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *JournalRepo) WriteCorrection(ctx context.Context, run int64, c CorrectionEntry) error {
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO run_corrections (run_id, at_tick, rollback_to, inputs, before_sum, after_sum)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run, int64(c.At), int64(c.RollbackTo), c.Inputs, c.Before[:], c.After[:],
	)
	if err != nil {
		return fmt.Errorf("write correction: %w", err)
	}
	return nil
}

func (r *JournalRepo) FinishRun(ctx context.Context, run int64, tick ecs.Tick, sum ecs.Digest) error {
	_, err := r.db.pool.Exec(ctx,
		`UPDATE runs SET finished_at = now(), final_tick = $2, final_checksum = $3 WHERE id = $1`,
		run, int64(tick), sum[:],
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// PreviousRun returns the latest finished run of scenario older than run.
func (r *JournalRepo) PreviousRun(ctx context.Context, scenario string, run int64) (int64, bool, error) {
	var id int64
	err := r.db.pool.QueryRow(ctx,
		`SELECT id FROM runs
		 WHERE scenario = $1 AND id < $2 AND finished_at IS NOT NULL
		 ORDER BY id DESC LIMIT 1`,
		scenario, run,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("previous run: %w", err)
	}
	return id, true, nil
}

// FirstDivergence returns the earliest tick both runs journaled with
// different checksums.
func (r *JournalRepo) FirstDivergence(ctx context.Context, a, b int64) (ecs.Tick, bool, error) {
	var tick int64
	err := r.db.pool.QueryRow(ctx,
		`SELECT x.tick FROM run_checksums x
		 JOIN run_checksums y ON y.run_id = $2 AND y.tick = x.tick
		 WHERE x.run_id = $1 AND x.checksum <> y.checksum
		 ORDER BY x.tick LIMIT 1`,
		a, b,
	).Scan(&tick)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("first divergence: %w", err)
	}
	return ecs.Tick(tick), true, nil
}

package persist

import (
	"context"

	"github.com/l1jgo/rewind/internal/core/ecs"
	"go.uber.org/zap"
)

type checksumWriter interface {
	WriteChecksums(ctx context.Context, run int64, entries []ChecksumEntry) error
}

// Journal buffers checksums for one run and writes them in batches.
type Journal struct {
	repo    checksumWriter
	run     int64
	batch   int
	pending []ChecksumEntry
	log     *zap.Logger
}

func NewJournal(repo checksumWriter, run int64, batch int, log *zap.Logger) *Journal {
	if batch <= 0 {
		batch = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{repo: repo, run: run, batch: batch, log: log}
}

func (j *Journal) Run() int64 { return j.run }

// Record buffers the checksum for tick, flushing once the batch is full.
func (j *Journal) Record(ctx context.Context, tick ecs.Tick, sum ecs.Digest) error {
	j.pending = append(j.pending, ChecksumEntry{Tick: tick, Sum: sum})
	if len(j.pending) < j.batch {
		return nil
	}
	return j.Flush(ctx)
}

// Flush writes every buffered checksum. On failure the entries stay
// buffered for the next attempt.
func (j *Journal) Flush(ctx context.Context) error {
	if len(j.pending) == 0 {
		return nil
	}
	if err := j.repo.WriteChecksums(ctx, j.run, j.pending); err != nil {
		return err
	}
	j.log.Debug("journal flushed", zap.Int64("run", j.run), zap.Int("entries", len(j.pending)))
	j.pending = j.pending[:0]
	return nil
}

// Pending returns the number of buffered checksums.
func (j *Journal) Pending() int { return len(j.pending) }

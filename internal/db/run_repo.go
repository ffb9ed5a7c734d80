package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"sitewatch/internal/types"
)

// Run summary tables.
const (
	TableRuns       = "notification_runs"
	TableDryRunRuns = "notification_dry_runs"
)

// RunRepository stores RunSummaries. Per-target results are JSON encoded and
// zstd compressed into a single column; the counters stay queryable.
type RunRepository struct {
	db    DBTX
	table string

	encoder     *zstd.Encoder
	decoderPool sync.Pool
}

// NewRunRepository creates a RunRepository writing to table, which must be
// TableRuns or TableDryRunRuns.
func NewRunRepository(db DBTX, table string) (*RunRepository, error) {
	if table != TableRuns && table != TableDryRunRuns {
		return nil, fmt.Errorf("unknown run table %q", table)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &RunRepository{
		db:      db,
		table:   table,
		encoder: enc,
		decoderPool: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}, nil
}

// AppendRunSummary inserts summary.
func (r *RunRepository) AppendRunSummary(ctx context.Context, s *types.RunSummary) error {
	packed, err := r.compressResults(s.Results)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode run results", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO `+r.table+`
		 (id, started_at, finished_at, debug_mode, total_targets, succeeded,
		  failed, notifications_sent, results_zstd)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID,
		s.StartedAt,
		s.FinishedAt,
		s.DebugMode,
		s.TotalTargets,
		s.Succeeded,
		s.Failed,
		s.NotificationsSent,
		packed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append run summary", err)
	}
	return nil
}

// GetRunSummary returns the summary with id, including per-target results.
func (r *RunRepository) GetRunSummary(ctx context.Context, id string) (*types.RunSummary, error) {
	var s types.RunSummary
	var packed []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, started_at, finished_at, debug_mode, total_targets,
		        succeeded, failed, notifications_sent, results_zstd
		 FROM `+r.table+`
		 WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.DebugMode, &s.TotalTargets,
		&s.Succeeded, &s.Failed, &s.NotificationsSent, &packed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRun, "run not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve run summary", err)
	}

	results, err := r.decompressResults(packed)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode run results", err)
	}
	s.Results = results
	return &s, nil
}

// PurgeRunSummariesBefore deletes summaries of runs started before cutoff.
func (r *RunRepository) PurgeRunSummariesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM `+r.table+` WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge run summaries", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *RunRepository) compressResults(results []types.TargetResult) ([]byte, error) {
	if results == nil {
		results = []types.TargetResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}
	return r.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func (r *RunRepository) decompressResults(packed []byte) ([]types.TargetResult, error) {
	decoder := r.decoderPool.Get().(*zstd.Decoder)
	defer r.decoderPool.Put(decoder)

	raw, err := decoder.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	var results []types.TargetResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, err
	}
	return results, nil
}

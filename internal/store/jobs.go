package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"htcimaging/internal/history"
)

// Import describes one stored cluster history.
type Import struct {
	ClusterID  int64     `json:"cluster_id"`
	Source     string    `json:"source"`
	JobCount   int       `json:"job_count"`
	ImportedAt time.Time `json:"imported_at"`
}

// ImportResult reports what ImportJobs did.
type ImportResult struct {
	ClusterID int64 `json:"cluster_id"`
	Imported  int   `json:"imported"`
	Skipped   bool  `json:"skipped"`
}

// HasCluster reports whether job history for the cluster is stored.
func (s *Store) HasCluster(ctx context.Context, clusterID int64) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM history_imports WHERE cluster_id = ?", clusterID).Scan(&count); err != nil {
		return false, fmt.Errorf("check cluster %d: %w", clusterID, err)
	}
	return count > 0, nil
}

// ImportJobs stores the records for a cluster. An already stored cluster is
// skipped unless overwrite is set, in which case its records are replaced.
// Records naming another cluster or repeating a proc id are rejected.
func (s *Store) ImportJobs(ctx context.Context, clusterID int64, source string, records []history.Record, overwrite bool) (ImportResult, error) {
	result := ImportResult{ClusterID: clusterID}

	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if rec.ClusterID != 0 && rec.ClusterID != clusterID {
			return result, fmt.Errorf("job %d.%d does not belong to cluster %d", rec.ClusterID, rec.ProcID, clusterID)
		}
		if _, dup := seen[rec.ProcID]; dup {
			return result, fmt.Errorf("duplicate proc id %d in cluster %d", rec.ProcID, clusterID)
		}
		seen[rec.ProcID] = struct{}{}
	}

	exists, err := s.HasCluster(ctx, clusterID)
	if err != nil {
		return result, err
	}
	if exists && !overwrite {
		result.Skipped = true
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM job_records WHERE cluster_id = ?", clusterID); err != nil {
		return result, fmt.Errorf("clear job records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history_imports (cluster_id, source, job_count, imported_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(cluster_id) DO UPDATE SET source = excluded.source, job_count = excluded.job_count, imported_at = excluded.imported_at`,
		clusterID, source, len(records), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return result, fmt.Errorf("record import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_records (
            cluster_id, proc_id, job_status, exit_code,
            job_start, input_start, input_end, output_start, output_end, job_end, completion
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return result, fmt.Errorf("prepare job insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			clusterID,
			rec.ProcID,
			rec.JobStatus,
			rec.ExitCode,
			nullableUnix(rec.JobStart),
			nullableUnix(rec.InputStart),
			nullableUnix(rec.InputEnd),
			nullableUnix(rec.OutputStart),
			nullableUnix(rec.OutputEnd),
			nullableUnix(rec.JobEnd),
			nullableUnix(rec.CompletionTime),
		); err != nil {
			return result, fmt.Errorf("insert job %d.%d: %w", clusterID, rec.ProcID, err)
		}
		result.Imported++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

// JobRecords returns the stored records for a cluster ordered by proc id.
func (s *Store) JobRecords(ctx context.Context, clusterID int64) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proc_id, job_status, exit_code,
                job_start, input_start, input_end, output_start, output_end, job_end, completion
         FROM job_records WHERE cluster_id = ? ORDER BY proc_id`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("query job records: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var (
			rec                                        history.Record
			jobStart, inStart, inEnd, outStart, outEnd sql.NullInt64
			jobEnd, completion                         sql.NullInt64
		)
		if err := rows.Scan(&rec.ProcID, &rec.JobStatus, &rec.ExitCode,
			&jobStart, &inStart, &inEnd, &outStart, &outEnd, &jobEnd, &completion); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		rec.ClusterID = clusterID
		rec.JobStart = unixOrZero(jobStart)
		rec.InputStart = unixOrZero(inStart)
		rec.InputEnd = unixOrZero(inEnd)
		rec.OutputStart = unixOrZero(outStart)
		rec.OutputEnd = unixOrZero(outEnd)
		rec.JobEnd = unixOrZero(jobEnd)
		rec.CompletionTime = unixOrZero(completion)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListImports returns stored clusters, newest import first.
func (s *Store) ListImports(ctx context.Context) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT cluster_id, source, job_count, imported_at FROM history_imports ORDER BY imported_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var imports []Import
	for rows.Next() {
		var (
			imp Import
			raw string
		)
		if err := rows.Scan(&imp.ClusterID, &imp.Source, &imp.JobCount, &raw); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imp.ImportedAt = parseTimestamp(raw)
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

func nullableUnix(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}
	return ts.Unix()
}

func unixOrZero(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

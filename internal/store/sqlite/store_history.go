package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// AppendActionHistory records one executed queued action, successful or not.
func (s *Store) AppendActionHistory(ctx context.Context, rec domain.ActionRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_history (id, action_slug, fields_json, queued_at, executed_at, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActionSlug, string(fields), rec.QueuedAt,
		rec.ExecutedAt.UTC().Format(time.RFC3339Nano), boolToInt(rec.Success), rec.Error)
	return err
}

// ListActionHistory returns up to limit most recent action records.
func (s *Store) ListActionHistory(ctx context.Context, limit int) ([]domain.ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_slug, fields_json, queued_at, executed_at, success, error
		 FROM action_history ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ActionRecord
	for rows.Next() {
		var rec domain.ActionRecord
		var fieldsJSON, executedAt string
		var success int
		if err := rows.Scan(&rec.ID, &rec.ActionSlug, &fieldsJSON, &rec.QueuedAt, &executedAt, &success, &rec.Error); err != nil {
			return nil, err
		}
		if fieldsJSON != "" {
			_ = json.Unmarshal([]byte(fieldsJSON), &rec.Fields)
		}
		if ts, perr := time.Parse(time.RFC3339Nano, executedAt); perr == nil {
			rec.ExecutedAt = ts
		}
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/drtrace/drtrace/internal/model"
)

// purgeChunkSize bounds how many rows a single retention delete transaction
// touches, so retention never holds the write lock for long intervals.
const purgeChunkSize = 1000

// Append commits a batch of validated records in one transaction and returns
// the number accepted. The batch is all-or-nothing: any failure rolls back
// every record. Record ids are assigned by SQLite AUTOINCREMENT and are
// strictly increasing for the lifetime of the store file.
func (db *DB) Append(ctx context.Context, records []model.LogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	err := withRetry(ctx, 3, 10*time.Millisecond, func() error {
		tx, err := db.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("storage: begin append tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO logs (ts, level, message, application_id, module_name,
			                  service_name, file_path, line_no, exception_type, stacktrace, context)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage: prepare append: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range records {
			contextJSON, err := encodeContext(r.Context)
			if err != nil {
				return fmt.Errorf("storage: encode context: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				r.TS, string(r.Level), r.Message, r.ApplicationID, r.ModuleName,
				nullStr(r.ServiceName), nullStr(r.FilePath), nullInt(r.LineNo),
				nullStr(r.ExceptionType), nullStr(r.Stacktrace), contextJSON,
			); err != nil {
				return fmt.Errorf("storage: insert record: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: commit append tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if db.appendCounter != nil {
		db.appendCounter.Add(ctx, int64(len(records)))
	}
	return len(records), nil
}

// Query returns at most p.Limit records with p.StartTS <= ts <= p.EndTS,
// matching the optional equality, level-floor and message filters, ordered
// by (ts ASC, id ASC).
//
// The substring filter runs in SQL (case-insensitive instr). The regex
// filter runs in Go over an ordered scan, because SQLite has no regexp
// support without a loadable extension; the scan stops as soon as the
// limit is satisfied.
func (db *DB) Query(ctx context.Context, p model.QueryParams) ([]model.StoredRecord, error) {
	q := strings.Builder{}
	q.WriteString(`
		SELECT id, ts, level, message, application_id, module_name,
		       service_name, file_path, line_no, exception_type, stacktrace, context
		FROM logs
		WHERE ts >= ? AND ts <= ?`)
	args := []any{p.StartTS, p.EndTS}

	if p.ApplicationID != "" {
		q.WriteString(` AND application_id = ?`)
		args = append(args, p.ApplicationID)
	}
	if p.ModuleName != "" {
		q.WriteString(` AND module_name = ?`)
		args = append(args, p.ModuleName)
	}
	if p.MinLevel != "" {
		levels := levelsAtOrAbove(p.MinLevel)
		q.WriteString(` AND level IN (?` + strings.Repeat(", ?", len(levels)-1) + `)`)
		for _, l := range levels {
			args = append(args, string(l))
		}
	}
	if p.MessageContains != "" {
		q.WriteString(` AND instr(lower(message), lower(?)) > 0`)
		args = append(args, p.MessageContains)
	}

	q.WriteString(` ORDER BY ts ASC, id ASC`)
	if p.MessageRegex == nil {
		q.WriteString(` LIMIT ?`)
		args = append(args, p.Limit)
	}

	rows, err := db.sql.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query logs: %w", err)
	}
	defer rows.Close()

	out := make([]model.StoredRecord, 0, min(p.Limit, 64))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if p.MessageRegex != nil && !p.MessageRegex.MatchString(rec.Message) {
			continue
		}
		out = append(out, rec)
		if len(out) >= p.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: query rows: %w", err)
	}
	return out, nil
}

// PurgeOlderThan deletes records with ts < cutoff in bounded chunks and
// returns the total removed. Retention is the only deletion path besides
// Clear; it never blocks readers for longer than one chunk.
func (db *DB) PurgeOlderThan(ctx context.Context, cutoff float64) (int64, error) {
	var total int64
	for {
		db.writeMu.Lock()
		res, err := db.sql.ExecContext(ctx, `
			DELETE FROM logs WHERE id IN (
				SELECT id FROM logs WHERE ts < ? LIMIT ?
			)`, cutoff, purgeChunkSize)
		db.writeMu.Unlock()
		if err != nil {
			return total, fmt.Errorf("storage: purge chunk: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("storage: purge rows affected: %w", err)
		}
		total += n
		if n < purgeChunkSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// Clear deletes all records for an application and returns the count removed.
func (db *DB) Clear(ctx context.Context, applicationID string) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.sql.ExecContext(ctx, `DELETE FROM logs WHERE application_id = ?`, applicationID)
	if err != nil {
		return 0, fmt.Errorf("storage: clear %s: %w", applicationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: clear rows affected: %w", err)
	}
	return n, nil
}

// levelsAtOrAbove returns the enumerated tokens at or above the floor.
func levelsAtOrAbove(floor model.Level) []model.Level {
	all := []model.Level{model.LevelDebug, model.LevelInfo, model.LevelWarn, model.LevelError, model.LevelCritical}
	out := make([]model.Level, 0, len(all))
	for _, l := range all {
		if l.AtLeast(floor) {
			out = append(out, l)
		}
	}
	return out
}

func scanRecord(rows *sql.Rows) (model.StoredRecord, error) {
	var rec model.StoredRecord
	var level string
	var serviceName, filePath, exceptionType, stacktrace sql.NullString
	var lineNo sql.NullInt64
	var contextJSON string

	if err := rows.Scan(
		&rec.ID, &rec.TS, &level, &rec.Message, &rec.ApplicationID, &rec.ModuleName,
		&serviceName, &filePath, &lineNo, &exceptionType, &stacktrace, &contextJSON,
	); err != nil {
		return rec, fmt.Errorf("storage: scan record: %w", err)
	}

	rec.Level = model.Level(level)
	rec.ServiceName = serviceName.String
	rec.FilePath = filePath.String
	rec.LineNo = int(lineNo.Int64)
	rec.ExceptionType = exceptionType.String
	rec.Stacktrace = stacktrace.String

	if contextJSON != "" && contextJSON != "{}" {
		if err := json.Unmarshal([]byte(contextJSON), &rec.Context); err != nil {
			return rec, fmt.Errorf("storage: decode context: %w", err)
		}
	}
	return rec, nil
}

func encodeContext(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

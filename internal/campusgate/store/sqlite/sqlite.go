// Package sqlite implements the campusgate stores on database/sql with the
// modernc.org/sqlite driver. Reads use the pool directly; every write goes
// through a db.Worker transaction. Times are stored as UTC Unix milliseconds.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
)

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ms(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeDetails(d map[string]any) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode details: %w", err)
	}
	return string(b), nil
}

func decodeDetails(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// limitOffset turns a page into LIMIT/OFFSET arguments. SQLite treats a
// negative LIMIT as unbounded.
func limitOffset(p store.Page) (int, int) {
	if p.Size <= 0 {
		return -1, 0
	}
	return p.Size, p.Offset()
}

// resolutionCols scans the shared resolution columns of violations and
// vehicle_alerts.
type resolutionCols struct {
	resolved int
	by       sql.NullString
	byName   sql.NullString
	at       sql.NullInt64
	notes    sql.NullString
}

func (r *resolutionCols) dest() []any {
	return []any{&r.resolved, &r.by, &r.byName, &r.at, &r.notes}
}

func (r resolutionCols) value() store.Resolution {
	res := store.Resolution{
		Resolved:   r.resolved != 0,
		ResolvedBy: r.by.String,
		ByName:     r.byName.String,
		Notes:      r.notes.String,
	}
	if r.at.Valid {
		res.ResolvedAt = fromMs(r.at.Int64)
	}
	return res
}

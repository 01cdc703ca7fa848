package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/campusgate/internal/db"
)

type Ledger struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedger(db *sql.DB, writer *dbpkg.Worker) *Ledger {
	return &Ledger{db: db, writer: writer}
}

const violationCols = `violation_id, violation_type, subject_kind, subject_id, gate_id,
  occurred_at_ms, details_json,
  resolved, resolved_by, resolved_by_name, resolved_at_ms, resolution_notes`

func scanViolation(row rowScanner) (store.Violation, error) {
	var (
		v        store.Violation
		kind, id sql.NullString
		occurred int64
		details  string
		res      resolutionCols
	)
	dest := append([]any{&v.ID, &v.Type, &kind, &id, &v.GateID, &occurred, &details}, res.dest()...)
	if err := row.Scan(dest...); err != nil {
		return store.Violation{}, err
	}
	if kind.Valid {
		v.Subject = store.SubjectRef{Kind: store.SubjectKind(kind.String), ID: id.String}
	}
	v.OccurredAt = fromMs(occurred)
	v.Resolution = res.value()

	var err error
	if v.Details, err = decodeDetails(details); err != nil {
		return store.Violation{}, err
	}
	return v, nil
}

func insertViolation(ctx context.Context, tx *sql.Tx, v store.Violation) error {
	details, err := encodeDetails(v.Details)
	if err != nil {
		return err
	}
	var kind, id any
	if !v.Subject.IsZero() {
		kind, id = string(v.Subject.Kind), v.Subject.ID
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO violations(violation_id, violation_type, subject_kind, subject_id, gate_id, occurred_at_ms, details_json)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		v.ID, v.Type, kind, id, v.GateID, ms(v.OccurredAt), details,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

func (l *Ledger) CreateViolation(ctx context.Context, v store.Violation) error {
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertViolation(ctx, tx, v)
	})
}

func (l *Ledger) GetViolation(ctx context.Context, id string) (store.Violation, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+violationCols+` FROM violations WHERE violation_id = ?;`, id)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Violation{}, store.ErrNotFound
	}
	if err != nil {
		return store.Violation{}, fmt.Errorf("GetViolation: %w", err)
	}
	return v, nil
}

func violationWhere(f store.ViolationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "violation_type = ?")
		args = append(args, f.Type)
	}
	if f.SubjectKind != "" {
		conds = append(conds, "subject_kind = ?")
		args = append(args, f.SubjectKind)
	}
	if f.GateID != "" {
		conds = append(conds, "gate_id = ?")
		args = append(args, f.GateID)
	}
	if f.From != nil {
		conds = append(conds, "occurred_at_ms >= ?")
		args = append(args, ms(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "occurred_at_ms <= ?")
		args = append(args, ms(*f.To))
	}
	if f.Resolved != nil {
		conds = append(conds, "resolved = ?")
		args = append(args, boolInt(*f.Resolved))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (l *Ledger) ListViolations(ctx context.Context, f store.ViolationFilter, p store.Page) ([]store.Violation, int, error) {
	where, args := violationWhere(f)

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListViolations count: %w", err)
	}

	limit, offset := limitOffset(p)
	rows, err := l.db.QueryContext(ctx, `SELECT `+violationCols+` FROM violations`+where+`
ORDER BY occurred_at_ms DESC, violation_id ASC LIMIT ? OFFSET ?;`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListViolations: %w", err)
	}
	defer rows.Close()

	var out []store.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListViolations scan: %w", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (l *Ledger) ResolveViolation(ctx context.Context, id string, res store.Resolution) (store.Violation, error) {
	var out store.Violation
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE violations
SET resolved = 1, resolved_by = ?, resolved_by_name = ?, resolved_at_ms = ?, resolution_notes = ?
WHERE violation_id = ? AND resolved = 0;`,
			res.ResolvedBy, nullString(res.ByName), ms(res.ResolvedAt), nullString(res.Notes), id,
		)
		if err != nil {
			return fmt.Errorf("ResolveViolation update: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("ResolveViolation rows: %w", err)
		}
		if n == 0 {
			var resolved int
			err := tx.QueryRowContext(ctx, `SELECT resolved FROM violations WHERE violation_id = ?;`, id).Scan(&resolved)
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("ResolveViolation check: %w", err)
			}
			return store.ErrAlreadyResolved
		}

		row := tx.QueryRowContext(ctx, `SELECT `+violationCols+` FROM violations WHERE violation_id = ?;`, id)
		out, err = scanViolation(row)
		return err
	})
	if err != nil {
		return store.Violation{}, err
	}
	return out, nil
}

func (l *Ledger) RecordFailedAttempt(
	ctx context.Context,
	attempt store.FailAttempt,
	since time.Time,
	build store.BuildViolation,
) (store.Violation, error) {
	var out store.Violation
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var prior int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM fail_attempts
WHERE subject_kind = ? AND subject_id = ? AND gate_id = ?
  AND attempted_at_ms >= ? AND attempted_at_ms <= ?;`,
			attempt.Subject.Kind, attempt.Subject.ID, attempt.GateID,
			ms(since), ms(attempt.AttemptedAt),
		).Scan(&prior); err != nil {
			return fmt.Errorf("count fail attempts: %w", err)
		}

		v := build(prior)
		if err := insertViolation(ctx, tx, v); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO fail_attempts(attempt_id, subject_kind, subject_id, gate_id, attempted_at_ms, confidence, violation_id)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
			attempt.ID, attempt.Subject.Kind, attempt.Subject.ID, attempt.GateID,
			ms(attempt.AttemptedAt), attempt.Confidence, v.ID,
		); err != nil {
			return fmt.Errorf("insert fail attempt: %w", err)
		}

		out = v
		return nil
	})
	if err != nil {
		return store.Violation{}, err
	}
	return out, nil
}

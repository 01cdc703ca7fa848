package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/campusgate/internal/db"
)

type Directory struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDirectory(db *sql.DB, writer *dbpkg.Worker) *Directory {
	return &Directory{db: db, writer: writer}
}

const (
	studentCols = `student_id, name, email, phone, photo_url, status, qr_code, created_at_ms`
	staffCols   = `staff_id, name, email, phone, photo_url, status, qr_code, created_at_ms`
	visitorCols = `visitor_id, name, email, phone, photo_url, status, qr_code, created_at_ms,
  company, purpose, host_staff_id, valid_from_ms, valid_until_ms`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner, kind store.SubjectKind) (store.Subject, error) {
	s := store.Subject{Ref: store.SubjectRef{Kind: kind}}
	var created int64
	err := row.Scan(&s.Ref.ID, &s.Name, &s.Email, &s.Phone, &s.PhotoURL, &s.Status, &s.Code, &created)
	if err != nil {
		return store.Subject{}, err
	}
	s.CreatedAt = fromMs(created)
	return s, nil
}

func scanVisitor(row rowScanner) (store.Subject, error) {
	s := store.Subject{Ref: store.SubjectRef{Kind: store.KindVisitor}}
	var created, from, until int64
	err := row.Scan(&s.Ref.ID, &s.Name, &s.Email, &s.Phone, &s.PhotoURL, &s.Status, &s.Code, &created,
		&s.Company, &s.Purpose, &s.HostID, &from, &until)
	if err != nil {
		return store.Subject{}, err
	}
	s.CreatedAt = fromMs(created)
	s.ValidFrom = fromMs(from)
	s.ValidUntil = fromMs(until)
	return s, nil
}

func (d *Directory) FindByCode(ctx context.Context, kind store.SubjectKind, code string) (store.Subject, error) {
	return d.lookup(ctx, kind, "qr_code", code)
}

func (d *Directory) GetSubject(ctx context.Context, ref store.SubjectRef) (store.Subject, error) {
	switch ref.Kind {
	case store.KindStudent:
		return d.lookup(ctx, ref.Kind, "student_id", ref.ID)
	case store.KindStaff:
		return d.lookup(ctx, ref.Kind, "staff_id", ref.ID)
	case store.KindVisitor:
		return d.lookup(ctx, ref.Kind, "visitor_id", ref.ID)
	}
	return store.Subject{}, store.ErrNotFound
}

// lookup selects one subject of kind by an indexed column. column is always
// a constant supplied by this file.
func (d *Directory) lookup(ctx context.Context, kind store.SubjectKind, column, value string) (store.Subject, error) {
	var (
		s   store.Subject
		err error
	)
	switch kind {
	case store.KindStudent:
		row := d.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE `+column+` = ?;`, value)
		s, err = scanPerson(row, kind)
	case store.KindStaff:
		row := d.db.QueryRowContext(ctx, `SELECT `+staffCols+` FROM staff WHERE `+column+` = ?;`, value)
		s, err = scanPerson(row, kind)
	case store.KindVisitor:
		row := d.db.QueryRowContext(ctx, `SELECT `+visitorCols+` FROM visitors WHERE `+column+` = ?;`, value)
		s, err = scanVisitor(row)
	default:
		return store.Subject{}, store.ErrNotFound
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Subject{}, store.ErrNotFound
	}
	if err != nil {
		return store.Subject{}, fmt.Errorf("lookup %s: %w", kind, err)
	}

	if kind == store.KindVisitor {
		if s.AllowedGates, err = d.allowedGates(ctx, s.Ref.ID); err != nil {
			return store.Subject{}, err
		}
	}
	return s, nil
}

func (d *Directory) allowedGates(ctx context.Context, visitorID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT gate_id FROM visitor_allowed_gates WHERE visitor_id = ? ORDER BY gate_id;`, visitorID)
	if err != nil {
		return nil, fmt.Errorf("allowed gates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("allowed gates scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (d *Directory) GetGate(ctx context.Context, gateID string) (store.Gate, error) {
	var g store.Gate
	err := d.db.QueryRowContext(ctx,
		`SELECT gate_id, name, location, status FROM gates WHERE gate_id = ?;`, gateID,
	).Scan(&g.ID, &g.Name, &g.Location, &g.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Gate{}, store.ErrNotFound
	}
	if err != nil {
		return store.Gate{}, fmt.Errorf("GetGate: %w", err)
	}
	return g, nil
}

func (d *Directory) ListGates(ctx context.Context) ([]store.Gate, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT gate_id, name, location, status FROM gates ORDER BY gate_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListGates: %w", err)
	}
	defer rows.Close()

	var out []store.Gate
	for rows.Next() {
		var g store.Gate
		if err := rows.Scan(&g.ID, &g.Name, &g.Location, &g.Status); err != nil {
			return nil, fmt.Errorf("ListGates scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (d *Directory) CreateVisitor(ctx context.Context, v store.Subject) error {
	return d.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO visitors(
  visitor_id, name, email, phone, company, purpose, photo_url,
  host_staff_id, valid_from_ms, valid_until_ms, status, qr_code, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			v.Ref.ID, v.Name, v.Email, v.Phone, v.Company, v.Purpose, v.PhotoURL,
			v.HostID, ms(v.ValidFrom), ms(v.ValidUntil), v.Status, v.Code, ms(v.CreatedAt),
		)
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("CreateVisitor insert: %w", err)
		}

		for _, g := range v.AllowedGates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO visitor_allowed_gates(visitor_id, gate_id) VALUES (?, ?);`, v.Ref.ID, g,
			); err != nil {
				return fmt.Errorf("CreateVisitor gate %s: %w", g, err)
			}
		}
		return nil
	})
}

func (d *Directory) ListVisitors(ctx context.Context, p store.Page) ([]store.Subject, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visitors;`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListVisitors count: %w", err)
	}

	limit, offset := limitOffset(p)
	rows, err := d.db.QueryContext(ctx, `SELECT `+visitorCols+` FROM visitors
ORDER BY created_at_ms DESC, visitor_id ASC LIMIT ? OFFSET ?;`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListVisitors: %w", err)
	}

	var out []store.Subject
	for rows.Next() {
		s, err := scanVisitor(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("ListVisitors scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	// Release the single connection before the per-visitor queries.
	rows.Close()

	for i := range out {
		if out[i].AllowedGates, err = d.allowedGates(ctx, out[i].Ref.ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

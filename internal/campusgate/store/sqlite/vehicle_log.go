package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/campusgate/internal/db"
)

type VehicleLog struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewVehicleLog(db *sql.DB, writer *dbpkg.Worker) *VehicleLog {
	return &VehicleLog{db: db, writer: writer}
}

const (
	entryCols = `entry_id, license_plate, vehicle_id, gate_id, entry_time_ms, entry_image,
  exit_time_ms, exit_image, status, notes`
	alertCols = `alert_id, license_plate, alert_at_ms, alert_type, gate_id, image, details_json,
  resolved, resolved_by, resolved_by_name, resolved_at_ms, resolution_notes`
)

func scanEntry(row rowScanner) (store.VehicleEntry, error) {
	var (
		e         store.VehicleEntry
		vehicleID sql.NullString
		entered   int64
		exited    sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Plate, &vehicleID, &e.GateID, &entered, &e.EntryImage,
		&exited, &e.ExitImage, &e.Status, &e.Notes)
	if err != nil {
		return store.VehicleEntry{}, err
	}
	e.VehicleID = vehicleID.String
	e.EntryTime = fromMs(entered)
	e.ExitTime = timePtr(exited)
	return e, nil
}

func scanAlert(row rowScanner) (store.VehicleAlert, error) {
	var (
		a       store.VehicleAlert
		at      int64
		details string
		res     resolutionCols
	)
	dest := append([]any{&a.ID, &a.Plate, &at, &a.Type, &a.GateID, &a.Image, &details}, res.dest()...)
	if err := row.Scan(dest...); err != nil {
		return store.VehicleAlert{}, err
	}
	a.At = fromMs(at)
	a.Resolution = res.value()

	var err error
	if a.Details, err = decodeDetails(details); err != nil {
		return store.VehicleAlert{}, err
	}
	return a, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e store.VehicleEntry) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO vehicle_entries(`+entryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.Plate, nullString(e.VehicleID), e.GateID, ms(e.EntryTime), e.EntryImage,
		nullMs(e.ExitTime), e.ExitImage, e.Status, e.Notes,
	)
	if isUniqueViolation(err) {
		// Either a reused id or a second open entry for the plate.
		return store.ErrIntegrityConflict
	}
	if err != nil {
		return fmt.Errorf("insert vehicle entry: %w", err)
	}
	return nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, a store.VehicleAlert) error {
	details, err := encodeDetails(a.Details)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO vehicle_alerts(alert_id, license_plate, alert_at_ms, alert_type, gate_id, image, details_json)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		a.ID, a.Plate, ms(a.At), a.Type, a.GateID, a.Image, details,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert vehicle alert: %w", err)
	}
	return nil
}

func openEntries(ctx context.Context, tx *sql.Tx, plate string) ([]store.VehicleEntry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+entryCols+` FROM vehicle_entries
WHERE license_plate = ? AND exit_time_ms IS NULL;`, plate)
	if err != nil {
		return nil, fmt.Errorf("open entries: %w", err)
	}
	defer rows.Close()

	var out []store.VehicleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("open entries scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// closeEntry sets the exit columns of an open entry. The exit_time_ms IS NULL
// guard means a concurrent close makes this one fail instead of overwriting.
func closeEntry(ctx context.Context, tx *sql.Tx, e store.VehicleEntry) error {
	res, err := tx.ExecContext(ctx, `
UPDATE vehicle_entries SET exit_time_ms = ?, exit_image = ?, status = ?, notes = ?
WHERE entry_id = ? AND exit_time_ms IS NULL;`,
		nullMs(e.ExitTime), e.ExitImage, e.Status, e.Notes, e.ID,
	)
	if err != nil {
		return fmt.Errorf("close entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close entry rows: %w", err)
	}
	if n != 1 {
		return store.ErrIntegrityConflict
	}
	return nil
}

func (l *VehicleLog) RecordEntry(ctx context.Context, w store.EntryWrite) (store.EntryOutcome, error) {
	var out store.EntryOutcome
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		out = store.EntryOutcome{}

		open, err := openEntries(ctx, tx, w.Entry.Plate)
		if err != nil {
			return err
		}
		if len(open) > 1 {
			return store.ErrIntegrityConflict
		}

		if len(open) == 1 {
			stale := open[0]
			exit := w.Entry.EntryTime
			stale.ExitTime = &exit
			stale.Status = store.EntryFlagged
			stale.Notes = "superseded by re-entry"
			if err := closeEntry(ctx, tx, stale); err != nil {
				return err
			}
			out.Superseded = &stale
			if w.OnStale != nil {
				a := w.OnStale(stale)
				if err := insertAlert(ctx, tx, a); err != nil {
					return err
				}
				out.Alerts = append(out.Alerts, a)
			}
		}

		if err := insertEntry(ctx, tx, w.Entry); err != nil {
			return err
		}
		if w.Alert != nil {
			if err := insertAlert(ctx, tx, *w.Alert); err != nil {
				return err
			}
			out.Alerts = append(out.Alerts, *w.Alert)
		}
		out.Entry = w.Entry
		return nil
	})
	if err != nil {
		return store.EntryOutcome{}, err
	}
	return out, nil
}

func (l *VehicleLog) RecordExit(ctx context.Context, w store.ExitWrite) (store.ExitOutcome, error) {
	var out store.ExitOutcome
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		out = store.ExitOutcome{}

		open, err := openEntries(ctx, tx, w.Plate)
		if err != nil {
			return err
		}

		switch len(open) {
		case 0:
			a := w.OnMissing()
			if err := insertAlert(ctx, tx, a); err != nil {
				return err
			}
			out.Alert = &a
			return nil
		case 1:
		default:
			return store.ErrIntegrityConflict
		}

		e := open[0]
		at := w.At
		e.ExitTime = &at
		e.ExitImage = w.Image
		e.Status = store.EntryExited
		if err := closeEntry(ctx, tx, e); err != nil {
			return err
		}
		out.Entry = &e
		return nil
	})
	if err != nil {
		return store.ExitOutcome{}, err
	}
	return out, nil
}

func (l *VehicleLog) ListEntries(ctx context.Context, f store.EntryFilter, p store.Page) ([]store.VehicleEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Plate != "" {
		conds = append(conds, "license_plate = ?")
		args = append(args, f.Plate)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.OpenOnly {
		conds = append(conds, "exit_time_ms IS NULL")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicle_entries`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEntries count: %w", err)
	}

	limit, offset := limitOffset(p)
	rows, err := l.db.QueryContext(ctx, `SELECT `+entryCols+` FROM vehicle_entries`+where+`
ORDER BY entry_time_ms DESC, entry_id ASC LIMIT ? OFFSET ?;`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEntries: %w", err)
	}
	defer rows.Close()

	var out []store.VehicleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEntries scan: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (l *VehicleLog) ListAlerts(ctx context.Context, f store.AlertFilter, p store.Page) ([]store.VehicleAlert, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "alert_type = ?")
		args = append(args, f.Type)
	}
	if f.Resolved != nil {
		conds = append(conds, "resolved = ?")
		args = append(args, boolInt(*f.Resolved))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicle_alerts`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListAlerts count: %w", err)
	}

	limit, offset := limitOffset(p)
	rows, err := l.db.QueryContext(ctx, `SELECT `+alertCols+` FROM vehicle_alerts`+where+`
ORDER BY alert_at_ms DESC, alert_id ASC LIMIT ? OFFSET ?;`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAlerts: %w", err)
	}
	defer rows.Close()

	var out []store.VehicleAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListAlerts scan: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (l *VehicleLog) ResolveAlert(ctx context.Context, id string, res store.Resolution) (store.VehicleAlert, error) {
	var out store.VehicleAlert
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
UPDATE vehicle_alerts
SET resolved = 1, resolved_by = ?, resolved_by_name = ?, resolved_at_ms = ?, resolution_notes = ?
WHERE alert_id = ? AND resolved = 0;`,
			res.ResolvedBy, nullString(res.ByName), ms(res.ResolvedAt), nullString(res.Notes), id,
		)
		if err != nil {
			return fmt.Errorf("ResolveAlert update: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("ResolveAlert rows: %w", err)
		}
		if n == 0 {
			var resolved int
			err := tx.QueryRowContext(ctx, `SELECT resolved FROM vehicle_alerts WHERE alert_id = ?;`, id).Scan(&resolved)
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("ResolveAlert check: %w", err)
			}
			return store.ErrAlreadyResolved
		}

		out, err = scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertCols+` FROM vehicle_alerts WHERE alert_id = ?;`, id))
		return err
	})
	if err != nil {
		return store.VehicleAlert{}, err
	}
	return out, nil
}

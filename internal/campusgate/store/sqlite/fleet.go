package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/campusgate/internal/db"
)

type Fleet struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewFleet(db *sql.DB, writer *dbpkg.Worker) *Fleet {
	return &Fleet{db: db, writer: writer}
}

const vehicleCols = `vehicle_id, license_plate, owner_kind, owner_id, owner_name,
  vehicle_type, color, make, model, registered_at_ms`

func scanVehicle(row rowScanner) (store.Vehicle, error) {
	var (
		v   store.Vehicle
		reg int64
	)
	err := row.Scan(&v.ID, &v.Plate, &v.OwnerKind, &v.OwnerID, &v.OwnerName,
		&v.Type, &v.Color, &v.Make, &v.Model, &reg)
	if err != nil {
		return store.Vehicle{}, err
	}
	v.RegisteredAt = fromMs(reg)
	return v, nil
}

func (f *Fleet) GetVehicleByPlate(ctx context.Context, plate string) (store.Vehicle, error) {
	row := f.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE license_plate = ?;`, plate)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Vehicle{}, store.ErrNotFound
	}
	if err != nil {
		return store.Vehicle{}, fmt.Errorf("GetVehicleByPlate: %w", err)
	}
	return v, nil
}

func (f *Fleet) RegisterVehicle(ctx context.Context, v store.Vehicle) error {
	return f.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO vehicles(`+vehicleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			v.ID, v.Plate, v.OwnerKind, v.OwnerID, v.OwnerName,
			v.Type, v.Color, v.Make, v.Model, ms(v.RegisteredAt),
		)
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("RegisterVehicle insert: %w", err)
		}
		return nil
	})
}

func (f *Fleet) ListVehicles(ctx context.Context, p store.Page) ([]store.Vehicle, int, error) {
	var total int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles;`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListVehicles count: %w", err)
	}

	limit, offset := limitOffset(p)
	rows, err := f.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles
ORDER BY registered_at_ms DESC, vehicle_id ASC LIMIT ? OFFSET ?;`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListVehicles: %w", err)
	}
	defer rows.Close()

	var out []store.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListVehicles scan: %w", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

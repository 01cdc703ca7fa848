package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts the handful of rows a fresh dev database needs before any
// scan can be decided. It is idempotent.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT INTO gates(gate_id, name, location, status, created_at_ms) VALUES
  ('gate_main',    'Main Gate',    'North Entrance', 'online', ?),
  ('gate_east',    'East Gate',    'East Campus',    'online', ?),
  ('gate_parking', 'Parking Gate', 'Lot B',          'online', ?)
ON CONFLICT(gate_id) DO NOTHING;`, now, now, now); err != nil {
		return fmt.Errorf("seed gates: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO staff(staff_id, name, email, status, qr_code, created_at_ms)
VALUES ('stf_dev_host', 'Dev Host', 'host@campus.dev', 'active', 'QR-STF-DEV-0001', ?)
ON CONFLICT(staff_id) DO NOTHING;`, now); err != nil {
		return fmt.Errorf("seed staff: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO students(student_id, name, email, status, qr_code, created_at_ms)
VALUES ('stu_dev_0001', 'Dev Student', 'student@campus.dev', 'active', 'QR-STU-DEV-0001', ?)
ON CONFLICT(student_id) DO NOTHING;`, now); err != nil {
		return fmt.Errorf("seed students: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO vehicles(vehicle_id, license_plate, owner_kind, owner_id, owner_name, vehicle_type, registered_at_ms)
VALUES ('veh_dev_0001', 'DEV-001', 'staff', 'stf_dev_host', 'Dev Host', 'car', ?)
ON CONFLICT(vehicle_id) DO NOTHING;`, now); err != nil {
		return fmt.Errorf("seed vehicles: %w", err)
	}

	return nil
}

package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own shared-cache database; the name keeps it alive
	// across pool reconnects.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func mustExec(t *testing.T, conn *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := conn.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func seedGate(t *testing.T, conn *sql.DB, gateID string) {
	t.Helper()
	mustExec(t, conn,
		`INSERT INTO gates(gate_id, name, location, created_at_ms) VALUES (?, ?, 'Test', 0)`,
		gateID, "Gate "+gateID)
}

func seedStudent(t *testing.T, conn *sql.DB, id, code, status string) {
	t.Helper()
	mustExec(t, conn,
		`INSERT INTO students(student_id, name, status, qr_code, created_at_ms) VALUES (?, ?, ?, ?, 0)`,
		id, "Student "+id, status, code)
}

func seedStaff(t *testing.T, conn *sql.DB, id, code, status string) {
	t.Helper()
	mustExec(t, conn,
		`INSERT INTO staff(staff_id, name, status, qr_code, created_at_ms) VALUES (?, ?, ?, ?, 0)`,
		id, "Staff "+id, status, code)
}

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

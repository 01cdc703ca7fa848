package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/campusgate/internal/db"
)

type AccessLog struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLog(db *sql.DB, writer *dbpkg.Worker) *AccessLog {
	return &AccessLog{db: db, writer: writer}
}

func (l *AccessLog) RecordAccess(ctx context.Context, rec store.AccessLogRecord) error {
	if rec.AccessedAt.IsZero() {
		rec.AccessedAt = time.Now().UTC()
	}

	var confidence any
	if rec.FaceConfidence != nil {
		confidence = *rec.FaceConfidence
	}

	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(subject_kind, subject_id, gate_id, accessed_at_ms, qr_code_used, face_verified, face_confidence)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
			rec.Subject.Kind, rec.Subject.ID, rec.GateID, ms(rec.AccessedAt),
			rec.CodeUsed, boolInt(rec.FaceVerified), confidence,
		); err != nil {
			return fmt.Errorf("RecordAccess insert: %w", err)
		}
		return nil
	})
}

func (l *AccessLog) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM access_logs WHERE accessed_at_ms < ?;`, ms(cutoff))
		if err != nil {
			return fmt.Errorf("PruneOlderThan delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

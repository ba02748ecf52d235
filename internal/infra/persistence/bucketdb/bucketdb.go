// Package bucketdb stores the registry buckets of the memory store in a single
// SQL table, one row per bucket. The sqlite and postgres stores share it and
// differ only in their Dialect.
package bucketdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wmscore/internal/infra/persistence/memory"
	"wmscore/pkg/domain"
)

// Table is the registry table name.
const Table = "wms_registry"

// Dialect carries the backend specific statements for Table.
type Dialect struct {
	// PayloadType is the column type of the JSON payload.
	PayloadType string
	// Upsert writes (bucket, payload, saved_at).
	Upsert string
}

// SQLite stores payloads as BLOBs.
var SQLite = Dialect{
	PayloadType: "BLOB",
	Upsert: `INSERT INTO ` + Table + `(bucket, payload, saved_at) VALUES(?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
}

// Postgres stores payloads as JSONB.
var Postgres = Dialect{
	PayloadType: "JSONB",
	Upsert: `INSERT INTO ` + Table + `(bucket, payload, saved_at) VALUES($1, $2, $3)
		ON CONFLICT(bucket) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
}

// Ensure creates Table when missing.
func Ensure(ctx context.Context, db *sql.DB, d Dialect) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		bucket TEXT PRIMARY KEY,
		payload %s NOT NULL,
		saved_at TIMESTAMP NOT NULL
	)`, Table, d.PayloadType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", Table, err)
	}
	return nil
}

// Load reads every bucket. found is false for a fresh table.
func Load(ctx context.Context, db *sql.DB) (snapshot domain.Snapshot, found bool, err error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM `+Table)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("select %s: %w", Table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("scan %s: %w", Table, err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return domain.Snapshot{}, false, err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("iterate %s: %w", Table, err)
	}
	return snapshot, found, nil
}

// Save writes every bucket of snapshot in one SQL transaction.
func Save(ctx context.Context, db *sql.DB, d Dialect, snapshot domain.Snapshot, savedAt time.Time) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		payload, err := memory.EncodeBucket(snapshot, bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, d.Upsert, bucket, payload, savedAt.UTC()); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

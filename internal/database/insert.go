package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
)

// BundleRecord is one loaded bundle with its directory
type BundleRecord struct {
	Path          string
	Signature     string
	Version       uint32
	PlayerVersion string
	EngineVersion string
	Compression   string
	Size          int64
	Assets        []AssetRecord
}

// AssetRecord is one directory entry of a bundle
type AssetRecord struct {
	Index        int
	Name         string
	Resource     bool
	Format       uint32
	UnityVersion string

	// UnityMajor and UnityMinor are unset when UnityVersion does not parse
	UnityMajor sql.NullInt32
	UnityMinor sql.NullInt32
	Platform   string
	BigEndian  bool
	Size       int
	Objects    []ObjectRecord
}

// ObjectRecord is one object table entry with its resolved type name
type ObjectRecord struct {
	PathID   int64
	ClassID  int32
	TypeName string
	Offset   int64
	Size     uint32
}

// BulkInserter writes bundle records into the index in batches
type BulkInserter struct {
	db         *Database
	batchSize  int
	maxRetries int
	retryDelay time.Duration
}

// BulkInsertOptions configures bulk insertion behavior
type BulkInsertOptions struct {
	// BatchSize determines how many objects to insert per transaction
	BatchSize int

	// MaxRetries sets how often a batch is retried while the database is busy
	MaxRetries int

	// RetryDelay is the wait before the first retry; it doubles after each one
	RetryDelay time.Duration
}

// DefaultBulkInsertOptions returns sensible defaults for bulk insertion
func DefaultBulkInsertOptions() *BulkInsertOptions {
	return &BulkInsertOptions{
		BatchSize:  1000,
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
	}
}

// NewBulkInserter creates a new bulk inserter with the given database and options
func NewBulkInserter(db *Database, options *BulkInsertOptions) *BulkInserter {
	if options == nil {
		options = DefaultBulkInsertOptions()
	}

	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	return &BulkInserter{
		db:         db,
		batchSize:  batchSize,
		maxRetries: options.MaxRetries,
		retryDelay: options.RetryDelay,
	}
}

// InsertBundle replaces any earlier rows for rec.Path with rec. The bundle
// and its assets go in one transaction, objects in batches after it.
func (bi *BulkInserter) InsertBundle(ctx context.Context, rec *BundleRecord) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("bundle record cannot be nil")
	}

	var bundleID int64
	var assetIDs []int64
	err := bi.withRetry(ctx, rec.Path, func() error {
		var err error
		bundleID, assetIDs, err = bi.insertDirectory(ctx, rec)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inserting bundle %s: %w", rec.Path, err)
	}

	for i, a := range rec.Assets {
		for start := 0; start < len(a.Objects); start += bi.batchSize {
			end := min(start+bi.batchSize, len(a.Objects))
			batch := a.Objects[start:end]

			err := bi.withRetry(ctx, a.Name, func() error {
				return bi.insertObjects(ctx, assetIDs[i], batch)
			})
			if err != nil {
				return 0, fmt.Errorf("inserting objects %d-%d of %s: %w", start, end, a.Name, err)
			}
		}

		slog.Debug("Indexed asset", "bundle", rec.Path, "asset", a.Name, "objects", len(a.Objects))
	}

	return bundleID, nil
}

func (bi *BulkInserter) insertDirectory(ctx context.Context, rec *BundleRecord) (int64, []int64, error) {
	tx, err := bi.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM "bundles" WHERE "path" = ?`, rec.Path); err != nil {
		return 0, nil, fmt.Errorf("removing previous rows: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO "bundles" ("path", "signature", "version", "player_version", "engine_version", "compression", "size", "indexed_at") VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Signature, rec.Version, rec.PlayerVersion, rec.EngineVersion, rec.Compression, rec.Size,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, nil, fmt.Errorf("inserting bundle row: %w", err)
	}
	bundleID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO "assets" ("bundle_id", "index", "name", "resource", "format", "unity_version", "unity_major", "unity_minor", "platform", "big_endian", "size") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, nil, fmt.Errorf("preparing asset insert: %w", err)
	}
	defer stmt.Close()

	assetIDs := make([]int64, len(rec.Assets))
	for i, a := range rec.Assets {
		res, err := stmt.ExecContext(ctx, bundleID, a.Index, a.Name, a.Resource,
			nullIf(a.Resource, a.Format), nullIf(a.Resource, a.UnityVersion), a.UnityMajor, a.UnityMinor,
			nullIf(a.Resource, a.Platform), nullIf(a.Resource, a.BigEndian), a.Size)
		if err != nil {
			return 0, nil, fmt.Errorf("inserting asset %s: %w", a.Name, err)
		}
		if assetIDs[i], err = res.LastInsertId(); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("committing transaction: %w", err)
	}

	return bundleID, assetIDs, nil
}

// insertObjects inserts a single batch of objects within a transaction
func (bi *BulkInserter) insertObjects(ctx context.Context, assetID int64, batch []ObjectRecord) error {
	tx, err := bi.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO "objects" ("asset_id", "path_id", "class_id", "type_name", "offset", "size") VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing object insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range batch {
		if _, err := stmt.ExecContext(ctx, assetID, o.PathID, o.ClassID, o.TypeName, o.Offset, o.Size); err != nil {
			return fmt.Errorf("inserting object %d: %w", o.PathID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// withRetry runs fn again while SQLite reports the database busy or locked
func (bi *BulkInserter) withRetry(ctx context.Context, what string, fn func() error) error {
	delay := bi.retryDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= bi.maxRetries || !isBusy(err) {
			return err
		}

		slog.Warn("Database busy, retrying", "target", what, "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// nullIf stores NULL for serialized-file columns of resource entries
func nullIf(resource bool, v any) any {
	if resource {
		return sql.NullString{}
	}
	return v
}

// Package pgdb adapts a *pgxpool.Pool to the migrate.SourceDB/Cursor/
// LargeObjectSource/BatchJobDB contracts, grounded on pgx/v5's
// (*pgx.Tx).LargeObjects(), the Go analogue of the original implementation's
// postgres_large_object crate usage.
package pgdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgerber/lo-migrate/internal/migrate"
)

// Schema names the columns and table the engine reads and writes, since §6
// parameterizes every query by these names rather than hard-coding them.
type Schema struct {
	Table             string
	LegacyHashColumn  string
	DataColumn        string
	SizeColumn        string
	MimeColumn        string
	TargetHashColumn  string
	BatchJobTable     string
	BatchJobIDColumn  string
	BatchJobActiveCol string
}

// DB adapts a pgxpool.Pool to the engine's narrow database interfaces.
type DB struct {
	pool   *pgxpool.Pool
	schema Schema
}

// New wraps an already-connected pool. Connection construction (DSN,
// pooling parameters, TLS) is entirely the caller's concern, per §1.
func New(pool *pgxpool.Pool, schema Schema) *DB {
	return &DB{pool: pool, schema: schema}
}

// OpenUnmigratedCursor opens a read-only transaction and runs one query over
// every row whose target-hash column is still null; rows are scanned from
// the connection as Next is called. It does not declare a server-side
// cursor, and prefetch is not used.
func (db *DB) OpenUnmigratedCursor(ctx context.Context, prefetch int) (migrate.Cursor, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("pgdb: begin observer tx: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s FROM %s WHERE %s IS NULL",
		db.schema.LegacyHashColumn, db.schema.DataColumn, db.schema.SizeColumn, db.schema.MimeColumn,
		db.schema.Table, db.schema.TargetHashColumn,
	)

	rows, err := tx.Query(ctx, query)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("pgdb: observer cursor query: %w", err)
	}

	return &cursor{tx: tx, rows: rows}, nil
}

type cursor struct {
	tx   pgx.Tx
	rows pgx.Rows

	legacyHashHex string
	blobID        int64
	declaredSize  int64
	mimeType      string
	err           error
}

func (c *cursor) Next(ctx context.Context) bool {
	if !c.rows.Next() {
		return false
	}
	c.err = c.rows.Scan(&c.legacyHashHex, &c.blobID, &c.declaredSize, &c.mimeType)
	return c.err == nil
}

func (c *cursor) Row() (legacyHashHex string, blobID, declaredSize int64, mimeType string) {
	return c.legacyHashHex, c.blobID, c.declaredSize, c.mimeType
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close(ctx context.Context) error {
	c.rows.Close()
	return c.tx.Rollback(ctx)
}

// largeObject adapts pgx's large-object reader plus its owning transaction,
// which must stay open for the duration of the read.
type largeObject struct {
	tx  pgx.Tx
	obj *pgx.LargeObject
}

func (l *largeObject) Read(p []byte) (int, error) { return l.obj.Read(p) }

func (l *largeObject) Close(ctx context.Context) error {
	return l.tx.Rollback(ctx)
}

// OpenLargeObject opens a readable handle to the large object identified by
// blobID within its own transaction, per §6's "large-object access is via
// the database's large-object read API... within a transaction".
func (db *DB) OpenLargeObject(ctx context.Context, blobID int64) (migrate.LargeObjectSource, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("pgdb: begin large object tx: %w", err)
	}

	los := tx.LargeObjects()
	obj, err := los.Open(ctx, uint32(blobID), pgx.LargeObjectModeRead)
	if err != nil {
		tx.Rollback(ctx)
		return nil, fmt.Errorf("pgdb: opening large object %d: %w", blobID, err)
	}

	return &largeObject{tx: tx, obj: obj}, nil
}

// CountRemainingAndTotal issues the single two-subquery count named in §6.
func (db *DB) CountRemainingAndTotal(ctx context.Context) (remaining, total uint64, err error) {
	query := fmt.Sprintf(
		"SELECT (SELECT count(*) FROM %s WHERE %s IS NULL), (SELECT count(*) FROM %s)",
		db.schema.Table, db.schema.TargetHashColumn, db.schema.Table,
	)
	err = db.pool.QueryRow(ctx, query).Scan(&remaining, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("pgdb: counting rows: %w", err)
	}
	return remaining, total, nil
}

// CommitBatch writes a batch's target hashes in a single all-or-nothing
// transaction, per §4.6.
func (db *DB) CommitBatch(ctx context.Context, batch []migrate.BlobDescriptor, zeroRowsLogger func(legacyHashHex string)) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("pgdb: begin commit tx: %w", err)
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1 WHERE %s = $2",
		db.schema.Table, db.schema.TargetHashColumn, db.schema.LegacyHashColumn,
	)

	for i := range batch {
		tag, err := tx.Exec(ctx, query, batch[i].TargetHashHex, batch[i].LegacyHashHex)
		if err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("pgdb: updating legacy_hash=%s: %w", batch[i].LegacyHashHex, err)
		}
		if tag.RowsAffected() == 0 && zeroRowsLogger != nil {
			zeroRowsLogger(batch[i].LegacyHashHex)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgdb: committing batch: %w", err)
	}
	return nil
}

// DisableBatchJob implements migrate.BatchJobDB, marking the named batch job
// row inactive ahead of a run.
func (db *DB) DisableBatchJob(ctx context.Context, jobName string) (rowsAffected int64, err error) {
	query := fmt.Sprintf(
		"UPDATE %s SET %s = false WHERE %s = $1",
		db.schema.BatchJobTable, db.schema.BatchJobActiveCol, db.schema.BatchJobIDColumn,
	)
	tag, err := db.pool.Exec(ctx, query, jobName)
	if err != nil {
		return 0, fmt.Errorf("pgdb: disabling batch job %q: %w", jobName, err)
	}
	return tag.RowsAffected(), nil
}

// AddTargetHashColumn runs the idempotent pre-flight DDL named in §6,
// swallowing a "duplicate column" failure.
func (db *DB) AddTargetHashColumn(ctx context.Context) error {
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s CHAR(64)", db.schema.Table, db.schema.TargetHashColumn)
	_, err := db.pool.Exec(ctx, query)
	if err != nil && !isDuplicateColumn(err) {
		return fmt.Errorf("pgdb: adding target hash column: %w", err)
	}
	return nil
}

// FinalizeTargetHashColumn runs the post-run DDL named in §6: set the column
// NOT NULL and add a unique index.
func (db *DB) FinalizeTargetHashColumn(ctx context.Context, indexName string) error {
	notNull := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", db.schema.Table, db.schema.TargetHashColumn)
	if _, err := db.pool.Exec(ctx, notNull); err != nil {
		return fmt.Errorf("pgdb: setting target hash column not null: %w", err)
	}

	index := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, db.schema.Table, db.schema.TargetHashColumn)
	if _, err := db.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("pgdb: creating unique index: %w", err)
	}
	return nil
}

// pgCoder is the subset of *pgconn.PgError this package relies on, narrowed
// to a local interface so this file doesn't need to import pgconn directly
// just for one error-code comparison.
type pgCoder interface{ SQLState() string }

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	if coder, ok := err.(pgCoder); ok && coder.SQLState() == "42701" { // duplicate_column
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

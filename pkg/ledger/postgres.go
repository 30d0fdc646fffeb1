package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/limaJavier/coursetable/pkg/config"
	"github.com/limaJavier/coursetable/pkg/model"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_meta (
	id      INT PRIMARY KEY,
	version BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_entries (
	kind     TEXT NOT NULL,
	room     TEXT NOT NULL,
	day      INT  NOT NULL,
	slot     INT  NOT NULL,
	scope    TEXT NOT NULL,
	occupant TEXT NOT NULL,
	PRIMARY KEY (kind, room, day, slot)
);
CREATE TABLE IF NOT EXISTS ledger_fingerprints (
	scope       TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL
);`

const seedLedgerMeta = `INSERT INTO ledger_meta (id, version) VALUES (1, 0) ON CONFLICT DO NOTHING`

type entryRow struct {
	Kind     string `db:"kind"`
	Room     string `db:"room"`
	Day      int    `db:"day"`
	Slot     int    `db:"slot"`
	Scope    string `db:"scope"`
	Occupant string `db:"occupant"`
}

type fingerprintRow struct {
	Scope       string `db:"scope"`
	Fingerprint string `db:"fingerprint"`
}

// PostgresStore keeps one row per occupied cell. The single ledger_meta row carries the version
// and is locked for the duration of a save.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgres returns a pooled connection that has answered a ping.
func NewPostgres(settings config.PostgresSettings) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", settings.DSN())
	if err != nil {
		return nil, err
	}

	if settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(settings.MaxIdleConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the ledger tables when missing.
func (store *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := store.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	// Saves lock this row, so it has to exist before the first one
	if _, err := store.db.ExecContext(ctx, seedLedgerMeta); err != nil {
		return fmt.Errorf("seed ledger version: %w", err)
	}
	return nil
}

func (store *PostgresStore) Load(ctx context.Context) (Ledger, error) {
	ledger := New()

	var version int64
	err := store.db.GetContext(ctx, &version, `SELECT version FROM ledger_meta WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Ledger{}, fmt.Errorf("get ledger version: %w", err)
	}
	ledger.Version = version

	var entries []entryRow
	if err := store.db.SelectContext(ctx, &entries,
		`SELECT kind, room, day, slot, scope, occupant FROM ledger_entries ORDER BY kind, room, day, slot`); err != nil {
		return Ledger{}, fmt.Errorf("list ledger entries: %w", err)
	}
	for _, row := range entries {
		kind, err := model.ParseKind(row.Kind)
		if err != nil {
			return Ledger{}, fmt.Errorf("ledger entry %s/%d/%d: %w", row.Room, row.Day, row.Slot, err)
		}
		key := Key{Kind: kind, Room: row.Room, Day: model.Day(row.Day), Slot: row.Slot}
		ledger.Entries[key] = Entry{Scope: row.Scope, Occupant: row.Occupant}
	}

	var fingerprints []fingerprintRow
	if err := store.db.SelectContext(ctx, &fingerprints, `SELECT scope, fingerprint FROM ledger_fingerprints`); err != nil {
		return Ledger{}, fmt.Errorf("list ledger fingerprints: %w", err)
	}
	for _, row := range fingerprints {
		ledger.Fingerprints[row.Scope] = row.Fingerprint
	}
	return ledger, nil
}

func (store *PostgresStore) Save(ctx context.Context, ledger Ledger) error {
	return store.replace(ctx, func(current int64) (Ledger, error) {
		if current != ledger.Version {
			return Ledger{}, versionConflict(current, ledger.Version)
		}
		return ledger, nil
	})
}

func (store *PostgresStore) Reset(ctx context.Context) error {
	return store.replace(ctx, func(current int64) (Ledger, error) {
		empty := New()
		empty.Version = current
		return empty, nil
	})
}

// replace swaps every row for the ledger returned by next and bumps the version, all in one transaction.
func (store *PostgresStore) replace(ctx context.Context, next func(current int64) (Ledger, error)) (err error) {
	tx, err := store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current int64
	err = tx.GetContext(ctx, &current, `SELECT version FROM ledger_meta WHERE id = 1 FOR UPDATE`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock ledger version: %w", err)
	}

	ledger, err := next(current)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
		return fmt.Errorf("clear ledger entries: %w", err)
	}
	for _, key := range ledger.Keys() {
		entry := ledger.Entries[key]
		row := entryRow{
			Kind:     key.Kind.String(),
			Room:     key.Room,
			Day:      int(key.Day),
			Slot:     key.Slot,
			Scope:    entry.Scope,
			Occupant: entry.Occupant,
		}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO ledger_entries (kind, room, day, slot, scope, occupant)
			VALUES (:kind, :room, :day, :slot, :scope, :occupant)`, row); err != nil {
			return fmt.Errorf("insert ledger entry %v: %w", key, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM ledger_fingerprints`); err != nil {
		return fmt.Errorf("clear ledger fingerprints: %w", err)
	}
	for scope, fingerprint := range ledger.Fingerprints {
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO ledger_fingerprints (scope, fingerprint) VALUES (:scope, :fingerprint)`,
			fingerprintRow{Scope: scope, Fingerprint: fingerprint}); err != nil {
			return fmt.Errorf("insert ledger fingerprint %s: %w", scope, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO ledger_meta (id, version) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version`, current+1); err != nil {
		return fmt.Errorf("bump ledger version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

package ledger

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/limaJavier/coursetable/pkg/errors"
	"github.com/limaJavier/coursetable/pkg/model"
)

func newPostgresMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestPostgresLoad(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM ledger_meta WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT kind, room, day, slot, scope, occupant FROM ledger_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "room", "day", "slot", "scope", "occupant"}).
			AddRow("theory", "R1", 0, 2, ScopeMain, "S1CS1:CS101").
			AddRow("lab", "LAB-1", 1, 0, ScopeElectives, "ELEC1-1:ELEC1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT scope, fingerprint FROM ledger_fingerprints`)).
		WillReturnRows(sqlmock.NewRows([]string{"scope", "fingerprint"}).AddRow(ScopeMain, "abc"))

	//** Act
	ledger, err := store.Load(context.Background())

	//** Assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), ledger.Version)
	assert.Equal(t, Entry{Scope: ScopeMain, Occupant: "S1CS1:CS101"},
		ledger.Entries[model.Usage{Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 2}])
	assert.True(t, ledger.Occupied(model.Usage{Kind: model.Lab, Room: "LAB-1", Day: model.Tuesday, Slot: 0}))
	assert.Equal(t, "abc", ledger.Fingerprint(ScopeMain))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadEmpty(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM ledger_meta`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM ledger_entries`)).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "room", "day", "slot", "scope", "occupant"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM ledger_fingerprints`)).
		WillReturnRows(sqlmock.NewRows([]string{"scope", "fingerprint"}))

	//** Act
	ledger, err := store.Load(context.Background())

	//** Assert
	require.NoError(t, err)
	assert.Zero(t, ledger.Version)
	assert.Empty(t, ledger.Entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSave(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	ledger := New()
	ledger.Version = 3
	ledger.Commit(ScopeMain, "abc", []model.Assignment{
		{Section: "S1CS1", Subject: "CS101", Kind: model.Theory, Room: "R1", Day: model.Monday, Slot: 2},
	})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM ledger_meta WHERE id = 1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ledger_entries`)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ledger_entries`)).
		WithArgs("theory", "R1", 0, 2, ScopeMain, "S1CS1:CS101").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ledger_fingerprints`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ledger_fingerprints`)).
		WithArgs(ScopeMain, "abc").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ledger_meta`)).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	//** Act
	err := store.Save(context.Background(), ledger)

	//** Assert
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrateSeedsVersionRow(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS ledger_meta`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ledger_meta (id, version) VALUES (1, 0) ON CONFLICT DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	//** Act
	err := store.Migrate(context.Background())

	//** Assert
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveConflict(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	ledger := New()
	ledger.Version = 3

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM ledger_meta WHERE id = 1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(5))
	mock.ExpectRollback()

	//** Act
	err := store.Save(context.Background(), ledger)

	//** Assert
	assert.ErrorIs(t, err, appErrors.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReset(t *testing.T) {
	//** Arrange
	store, mock, cleanup := newPostgresMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ledger_entries`)).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM ledger_fingerprints`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ledger_meta`)).
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	//** Act
	err := store.Reset(context.Background())

	//** Assert
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

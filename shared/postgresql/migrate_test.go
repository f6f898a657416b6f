package postgresql

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewFromDB(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestMigrate_AppliesPendingInOrder(t *testing.T) {
	client, mock := newMockClient(t)
	fsys := fstest.MapFS{
		"002_indexes.sql": {Data: []byte("CREATE INDEX b ON t (b);")},
		"001_init.sql":    {Data: []byte("CREATE TABLE t (b INT);")},
		"003_more.sql":    {Data: []byte("ALTER TABLE t ADD COLUMN c INT;")},
		"README.md":       {Data: []byte("ignored")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_init"))

	for _, m := range []struct{ version, body string }{
		{"002_indexes", "CREATE INDEX b ON t (b);"},
		{"003_more", "ALTER TABLE t ADD COLUMN c INT;"},
	} {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(m.body)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")).
			WithArgs(m.version).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, client.Migrate(context.Background(), fsys))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	client, mock := newMockClient(t)
	fsys := fstest.MapFS{"001_init.sql": {Data: []byte("CREATE TABLE broken")}}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE broken")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := client.Migrate(context.Background(), fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_init")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "broadcast", Password: "pw", Database: "community", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=broadcast password=pw dbname=community sslmode=disable", cfg.DSN())
}

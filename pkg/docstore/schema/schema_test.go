package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestLoadMigrations(t *testing.T) {
	for _, dialect := range []Dialect{SQLite, Postgres} {
		t.Run(string(dialect), func(t *testing.T) {
			runner, err := NewMigrationRunner(nil, dialect)
			require.NoError(t, err)

			migrations := runner.Migrations()
			require.NotEmpty(t, migrations)
			assert.Equal(t, 1, migrations[0].Version)
			assert.Contains(t, migrations[0].SQL, "crawl_state")
			for i := 1; i < len(migrations); i++ {
				assert.Less(t, migrations[i-1].Version, migrations[i].Version)
			}
		})
	}
}

func TestUnsupportedDialect(t *testing.T) {
	_, err := NewMigrationRunner(nil, Dialect("oracle"))
	assert.Error(t, err)
}

func TestRunSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewMigrationRunner(db, SQLite)
	require.NoError(t, err)

	ctx := context.Background()
	applied, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(runner.Migrations()), applied)

	applied, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	version, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.Migrations()[len(runner.Migrations())-1].Version, version)

	_, err = db.ExecContext(ctx, "INSERT INTO crawl_state (subreddit, status, cursor_utc, updated_at) VALUES ('a', 'in_progress', 1, 0)")
	assert.NoError(t, err)
}

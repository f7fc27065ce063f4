package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	createSources = Migration{
		Version:     1,
		Description: "create sources",
		Up:          `CREATE TABLE sources (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		Down:        `DROP TABLE sources`,
	}
	addSourceURL = Migration{
		Version:     2,
		Description: "add sources.url",
		Up:          `ALTER TABLE sources ADD COLUMN url TEXT NOT NULL DEFAULT ''`,
		Down:        `ALTER TABLE sources DROP COLUMN url`,
	}
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	// registered out of order on purpose
	manager := NewManager(addSourceURL, createSources)
	assert.Equal(t, 2, manager.Latest())

	require.NoError(t, manager.Apply(ctx, db))

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec(`INSERT INTO sources (id, name, url) VALUES (1, 'wire', 'https://wire.example')`)
	require.NoError(t, err)

	require.NoError(t, manager.Rollback(ctx, db))
	version, err = Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.Exec(`INSERT INTO sources (id, name, url) VALUES (2, 'x', 'y')`)
	assert.Error(t, err, "url column should be gone")
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	manager := NewManager(createSources)

	require.NoError(t, manager.Apply(ctx, db))
	require.NoError(t, manager.Apply(ctx, db))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestApplyFailureLeavesVersion(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	broken := Migration{Version: 2, Description: "broken", Up: `CREATE TABLE nope (`}
	manager := NewManager(createSources, broken)

	err := manager.Apply(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	version, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestRollbackEmpty(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	manager := NewManager(createSources)
	require.NoError(t, manager.Apply(ctx, db))
	require.NoError(t, manager.Rollback(ctx, db))

	assert.Error(t, manager.Rollback(ctx, db))
}

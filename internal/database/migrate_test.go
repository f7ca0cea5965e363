package database

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func latestVersion(t *testing.T) uint {
	t.Helper()
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	var latest uint
	for _, e := range entries {
		prefix, _, _ := strings.Cut(e.Name(), "_")
		v, err := strconv.ParseUint(prefix, 10, 32)
		require.NoError(t, err, e.Name())
		if uint(v) > latest {
			latest = uint(v)
		}
	}
	return latest
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, latestVersion(t), version)
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	_, err = db1.InsertArticle(context.Background(), NewArticle{URL: "https://example.com/keep"})
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	version, _, err := db2.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(t), version)

	exists, err := db2.ArticleExistsByURL(context.Background(), "https://example.com/keep")
	require.NoError(t, err)
	assert.True(t, exists, "reopening must not drop data")
}

func TestForeignKeysEnabledOnEveryConnection(t *testing.T) {
	db := openTestDB(t)
	db.conn.SetMaxOpenConns(4)

	conns := make([]*sql.Conn, 0, 4)
	for i := 0; i < 4; i++ {
		c, err := db.conn.Conn(context.Background())
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for _, c := range conns {
		var on int
		require.NoError(t, c.QueryRowContext(context.Background(), `PRAGMA foreign_keys`).Scan(&on))
		assert.Equal(t, 1, on)
		c.Close()
	}
}

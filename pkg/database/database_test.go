package database

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_jobs.sql":   {Data: []byte("SELECT 2")},
		"migrations/001_schema.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":      {Data: []byte("notes")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_schema.sql", "002_jobs.sql"}, names)
}

func TestEmbeddedSchemaIsPresent(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, names, "001_schema.sql")
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, NotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)
	other := errors.New("conn reset")
	assert.Equal(t, other, NotFound(other))
	assert.NoError(t, NotFound(nil))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(0, 20))
	assert.Equal(t, 0, Offset(1, 20))
	assert.Equal(t, 40, Offset(3, 20))
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	reg := schema.New()
	require.NoError(t, reg.Apply(chatSchema))

	for i := 0; i < 3; i++ {
		s, err := Open(path, reg)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpenReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	reg := schema.New()
	require.NoError(t, reg.Apply(chatSchema))
	ctx := context.Background()

	s1, err := Open(path, reg)
	require.NoError(t, err)
	_, err = s1.WriteRow(ctx, testPerson("p1", "room-1", 100, 0x01, "Ada"))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, reg)
	require.NoError(t, err)
	defer s2.Close()

	row, err := s2.ReadRowByID(ctx, "chat.Person", "p1")
	require.NoError(t, err)
	assert.Equal(t, ir.VString("Ada"), row.Fields["name"])
}

func TestApplyPragmasSetsExpectedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpenWithoutRegistrySkipsProvisioning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	var count int
	err = s.db.QueryRow("SELECT COUNT(*) FROM schema_history").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProvisionRecordsSchemaHistory(t *testing.T) {
	s := openTestStore(t, chatSchema)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM schema_history").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProvisionCreatesTablePerEntity(t *testing.T) {
	s := openTestStore(t, chatSchema)

	for _, table := range []string{"chat.Person", "chat.Message", "chat.Thread"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestProvisionCreatesFullTextShadowTable(t *testing.T) {
	s := openTestStore(t, chatSchema)

	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", "chat.Person_fts").Scan(&name)
	require.NoError(t, err)
}

func TestProvisionIsIdempotentAcrossReprovision(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.Apply(chatSchema))
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, reg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Provision(context.Background(), reg))
}

func TestFullTextSearchFindsInsertedRow(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.WriteRow(ctx, testPerson("p1", "room-1", 100, 0x01, "Ada Lovelace"))
	require.NoError(t, err)

	var id string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM "chat.Person_fts" WHERE "chat.Person_fts" MATCH ?`, "Lovelace").Scan(&id)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
}

package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/meshroom/internal/schema"
	"github.com/stretchr/testify/require"
)

// openTestStore opens a file-backed store (SQLite's WAL journal mode
// needs a real file, not ":memory:") provisioned against src, a schema.Registry
// document in internal/lang's data-model grammar.
func openTestStore(t *testing.T, src string) *Store {
	t.Helper()
	reg := schema.New()
	require.NoError(t, reg.Apply(src))

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const chatSchema = `
	chat {
		Person {
			name : String,
			age : Integer nullable,
			bio : String nullable,
			index(name),
			fulltext(name, bio),
		}
		Message {
			body : String,
			sender : chat.Person,
			index(sender),
			fulltext(body),
		}
		Thread {
			title : String,
			participants : [chat.Person],
		}
	}
`

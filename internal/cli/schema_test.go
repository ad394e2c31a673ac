package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validModel = `
	chat {
		Message {
			content : String,
			index(content),
		}
	}
`

const invalidModel = `
	chat {
		Message {
			content : String,
			index(missing_field),
		}
	}
`

func writeTempModel(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.meshroom")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestSchemaLintAcceptsValidModel(t *testing.T) {
	path := writeTempModel(t, validModel)
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"schema", "lint", path})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "valid")
}

func TestSchemaLintRejectsInvalidModel(t *testing.T) {
	path := writeTempModel(t, invalidModel)
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"schema", "lint", path})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSchemaLintMissingFile(t *testing.T) {
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"schema", "lint", filepath.Join(t.TempDir(), "missing.meshroom")})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaDumpListsEntitiesAndFields(t *testing.T) {
	path := writeTempModel(t, validModel)
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"schema", "dump", path})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "chat.Message")
	assert.Contains(t, buf.String(), "content : String")
}

func TestSchemaDumpJSON(t *testing.T) {
	path := writeTempModel(t, validModel)
	buf := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "json", "schema", "dump", path})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"name":"chat.Message"`)
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withStubPassword(t *testing.T, password []byte) {
	t.Helper()
	original := readPassword
	readPassword = func(fd int) ([]byte, error) {
		return append([]byte{}, password...), nil
	}
	t.Cleanup(func() { readPassword = original })
}

func TestIdentityInitPrintsFingerprint(t *testing.T) {
	withStubPassword(t, []byte("correct horse battery staple"))

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"identity", "init", t.TempDir()})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "fingerprint:")
}

func TestIdentityInitIsDeterministicAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	withStubPassword(t, []byte("same passphrase"))
	buf1 := &bytes.Buffer{}
	cmd1 := NewRootCommand()
	cmd1.SetArgs([]string{"identity", "init", dir})
	cmd1.SetOut(buf1)
	cmd1.SetErr(buf1)
	require.NoError(t, cmd1.Execute())

	withStubPassword(t, []byte("same passphrase"))
	buf2 := &bytes.Buffer{}
	cmd2 := NewRootCommand()
	cmd2.SetArgs([]string{"identity", "init", dir})
	cmd2.SetOut(buf2)
	cmd2.SetErr(buf2)
	require.NoError(t, cmd2.Execute())

	assert.Equal(t, buf1.String(), buf2.String(), "same key material and salt must derive the same fingerprint")
}

func TestIdentityInitJSON(t *testing.T) {
	withStubPassword(t, []byte("json passphrase"))

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "json", "identity", "init", t.TempDir()})
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"fingerprint"`)
}

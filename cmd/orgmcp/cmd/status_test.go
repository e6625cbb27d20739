package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_HasJSONFlag(t *testing.T) {
	cmd := NewRootCmd()

	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)

	flag := statusCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "should have --json flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestStatusCmd_NoIndexFound(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	cmd := newStatusCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
	assert.Contains(t, err.Error(), "orgmcp index")
}

func TestGetFileSize(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	assert.Equal(t, int64(5), getFileSize(path))
	assert.Equal(t, int64(0), getFileSize(filepath.Join(tmpDir, "missing")))
}

// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReopenAppend makes sure Reopen appends to a file which already has
// content, and picks up a fresh file after the old one was moved away.
func TestReopenAppend(t *testing.T) {
	name := filepath.Join(t.TempDir(), "gateway.log")
	require.NoError(t, os.WriteFile(name, []byte("line0\n"), 0600))

	f, err := NewFileWriter(name)
	require.NoError(t, err)
	_, err = f.Write([]byte("line1\n"))
	require.NoError(t, err)

	require.NoError(t, f.Reopen())
	_, err = f.Write([]byte("line2\n"))
	require.NoError(t, err)

	rotated := name + ".1"
	require.NoError(t, os.Rename(name, rotated))
	require.NoError(t, f.Reopen())
	_, err = f.Write([]byte("line3\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	old, err := os.ReadFile(rotated)
	require.NoError(t, err)
	assert.Equal(t, "line0\nline1\nline2\n", string(old))

	cur, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "line3\n", string(cur))
}

func TestNewFileWriterMissingDir(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "nope", "gateway.log"))
	assert.Error(t, err)
}

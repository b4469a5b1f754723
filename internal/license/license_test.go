package license

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_PicksUpFileAtRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.key")
	c := NewChecker(path)

	assert.False(t, c.IsPro(), "no file yet")

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.False(t, c.IsPro(), "empty file does not count")

	require.NoError(t, os.WriteFile(path, []byte("ACME-PRO"), 0o600))
	assert.True(t, c.IsPro())
	assert.Equal(t, Status{Pro: true, Path: path}, c.Status())

	require.NoError(t, os.Remove(path))
	assert.False(t, c.IsPro(), "removal takes effect without restart")
}

func TestChecker_DirectoryIsNotALicense(t *testing.T) {
	c := NewChecker(t.TempDir())
	assert.False(t, c.IsPro())
}

func TestChecker_NilAndEmpty(t *testing.T) {
	var c *Checker
	assert.False(t, c.IsPro())
	assert.Equal(t, Status{}, c.Status())
	assert.False(t, NewChecker("").IsPro())
}

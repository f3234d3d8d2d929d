package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sexpedit/internal/guard"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.True(t, c.Formatter.Enabled)
	assert.Equal(t, guard.ModeFullReads, c.GuardMode())
	assert.Equal(t, 3, c.Diff.Context)
	assert.False(t, c.Debug)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sexpedit.yaml")
	body := "formatter:\n  enabled: false\nguard:\n  mode: disabled\ndiff:\n  context: 5\ndebug: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Formatter.Enabled)
	assert.Equal(t, guard.ModeDisabled, c.GuardMode())
	assert.Equal(t, 5, c.Diff.Context)
	assert.True(t, c.Debug)
}

func TestLoadRejectsBadGuardMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sexpedit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard:\n  mode: sometimes\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

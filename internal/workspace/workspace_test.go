package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Temporary(t *testing.T) {
	t.Setenv(InheritEnv, "")
	base := t.TempDir()
	m := NewTempManager(base, nil)
	assert.True(t, m.Temporary())
	assert.Empty(t, m.Path())

	require.NoError(t, m.Create())
	dir := m.Path()
	assert.Equal(t, base, filepath.Dir(dir))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "sitepress-"))
	assert.DirExists(t, dir)

	// Create is idempotent.
	require.NoError(t, m.Create())
	assert.Equal(t, dir, m.Path())
	assert.Equal(t, []string{InheritEnv + "=" + dir}, m.ChildEnv())

	require.NoError(t, m.Cleanup())
	assert.NoDirExists(t, dir)
	assert.Empty(t, m.Path())
	require.NoError(t, m.Cleanup())
}

func TestManager_Configured(t *testing.T) {
	out := filepath.Join(t.TempDir(), "public", "site")
	m := ForOutput(out, nil)
	assert.False(t, m.Temporary())
	require.NoError(t, m.Create())
	assert.DirExists(t, out)
	assert.Nil(t, m.ChildEnv())

	require.NoError(t, m.Cleanup())
	assert.DirExists(t, out, "configured output must survive cleanup")
}

func TestManager_RelativeConfigured(t *testing.T) {
	m := ForOutput("out", nil)
	assert.True(t, filepath.IsAbs(m.Path()))
	assert.Equal(t, "out", filepath.Base(m.Path()))
}

func TestManager_InheritedTemporary(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(InheritEnv, dir)

	m := ForOutput(TempOutput, nil)
	assert.True(t, m.Temporary())
	assert.Equal(t, dir, m.Path())
	require.NoError(t, m.Create())

	require.NoError(t, m.Cleanup())
	_, err := os.Stat(dir)
	assert.NoError(t, err, "inherited directory belongs to the parent")
}

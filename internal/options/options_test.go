package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPath(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s.Get())
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, s.HelpForLocalFile())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("helpForLocalFile: false\ntrackLocalFile: true\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	opts := s.Get()
	assert.False(t, opts.HelpForLocalFile)
	assert.True(t, opts.TrackLocalFile)
	assert.True(t, opts.Autoclose, "unset keys keep defaults")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("helpForLocalFile: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("helpForLocalFile: true\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.HelpForLocalFile())

	require.NoError(t, os.WriteFile(path, []byte("helpForLocalFile: false\n"), 0o600))
	require.NoError(t, s.Reload())
	assert.False(t, s.HelpForLocalFile())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("paths: [/var/lib/ocm]\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/var/lib/ocm"}, c.Paths)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "lzma", c.Compression)
	assert.True(t, *c.CleanNames)
	assert.False(t, *c.DynamicInstantiation)
}

func TestParse_Explicit(t *testing.T) {
	data := []byte(`
inMemory: true
minimumFreeGB: 3
logLevel: debug
compression: zstd
cleanNames: false
dynamicInstantiation: true
`)
	c, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, c.InMemory)
	assert.Equal(t, uint(3), c.MinimumFreeGB)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "zstd", c.Compression)
	assert.False(t, *c.CleanNames)
	assert.True(t, *c.DynamicInstantiation)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("port: 4242\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", c.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, *c.CleanNames)
}

package cliconfig

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := Register(fs)
	require.NoError(t, fs.Parse(nil))

	assert.False(t, c.Debug)
	assert.Equal(t, 0, c.ChunkSize)
	assert.Equal(t, 360, c.MaxBuffered)
	assert.Equal(t, 0.1, c.Latency)
	assert.Equal(t, "control", c.ControlName)
}

func TestRegister_FlagsOverrideDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := Register(fs)
	require.NoError(t, fs.Parse([]string{"-debug", "-latency=0.25", "-control-name=markers"}))

	assert.True(t, c.Debug)
	assert.Equal(t, 0.25, c.Latency)
	assert.Equal(t, "markers", c.ControlName)
}

func TestRegister_EnvFallback(t *testing.T) {
	t.Setenv("LSLTOOLS_LATENCY", "0.5")
	t.Setenv("LSLTOOLS_CONTROL_NAME", "env-control")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := Register(fs)
	require.NoError(t, fs.Parse(nil))

	assert.Equal(t, 0.5, c.Latency)
	assert.Equal(t, "env-control", c.ControlName)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nLSLTOOLS_DEBUG=true\nLSLTOOLS_CONTROL_NAME=\"quoted\"\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("LSLTOOLS_DEBUG")
		os.Unsetenv("LSLTOOLS_CONTROL_NAME")
	})

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "true", os.Getenv("LSLTOOLS_DEBUG"))
	assert.Equal(t, "quoted", os.Getenv("LSLTOOLS_CONTROL_NAME"))
}

func TestLoadEnvFile_MissingIsNotError(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
}

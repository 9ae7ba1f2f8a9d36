package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8000", c.ServiceURL)
	assert.Equal(t, 0, c.HTTPTimeoutSec)
	assert.Equal(t, filepath.Join("~", DirName, "session.json"), c.StateFile)
	assert.Equal(t, filepath.Join("~", DirName, "logs", "docqa.log"), c.LogFile)

	statePath, err := c.StatePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DirName, "session.json"), statePath)
	logPath, err := c.LogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DirName, "logs", "docqa.log"), logPath)
	assert.Equal(t, "info", c.LogLevel)
	assert.True(t, c.Color)
}

func TestLoadPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgFile := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("service_url: http://file:9000\nhttp_timeout_sec: 15\ncolor: false\n"), 0o644))

	c, err := Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "http://file:9000", c.ServiceURL)
	assert.Equal(t, 15, c.HTTPTimeoutSec)
	assert.False(t, c.Color)

	t.Setenv("DOCQA_SERVICE_URL", "http://env:7000")
	c, err = Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "http://env:7000", c.ServiceURL, "env wins over file")
	assert.Equal(t, 15, c.HTTPTimeoutSec)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", c.ServiceURL)
}

func TestLoadMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgFile := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("service_url: [unterminated\n"), 0o644))

	_, err := Load(cfgFile)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("service_url", "http://saved:8000"))
	require.NoError(t, c.Set("http_timeout_sec", "30"))
	require.NoError(t, Save(c, ""))

	_, err = os.Stat(filepath.Join(home, DirName, "config.yaml"))
	require.NoError(t, err)

	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://saved:8000", again.ServiceURL)
	assert.Equal(t, 30, again.HTTPTimeoutSec)
}

func TestSaveKeepsHomeRelativePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("log_level", "debug"))
	require.NoError(t, Save(c, ""))

	b, err := os.ReadFile(filepath.Join(home, DirName, "config.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), home)

	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("~", DirName, "session.json"), again.StateFile)
	assert.Equal(t, filepath.Join("~", DirName, "logs", "docqa.log"), again.LogFile)
}

func TestSetValidates(t *testing.T) {
	var c Global
	assert.Error(t, c.Set("http_timeout_sec", "-1"))
	assert.Error(t, c.Set("http_timeout_sec", "soon"))
	assert.Error(t, c.Set("log_level", "loud"))
	assert.Error(t, c.Set("color", "maybe"))
	assert.Error(t, c.Set("service_url", ""))
	assert.Error(t, c.Set("api_key", "x"))

	require.NoError(t, c.Set("color", "false"))
	v, err := c.Get("color")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}

func TestGetCoversAllKeys(t *testing.T) {
	var c Global
	for _, k := range Keys {
		_, err := c.Get(k)
		assert.NoError(t, err, k)
	}
}

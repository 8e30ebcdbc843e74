package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Plain.Enabled)
	assert.Equal(t, 8080, cfg.Plain.Port)
	assert.False(t, cfg.TLS.Enabled)
	assert.Equal(t, int64(1<<20), cfg.MaxPayload)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod())
}

func TestLoadFileIsAuthoritative(t *testing.T) {
	path := writeConfig(t, `{
		"plain": {"enabled": true, "host": "192.168.1.10", "port": 9000},
		"heartbeat": {"interval": 5000, "timeout": 15000},
		"maxPayload": 4096
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.10", cfg.Plain.Host)
	assert.Equal(t, 9000, cfg.Plain.Port)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 15*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, int64(4096), cfg.MaxPayload)
}

func TestLoadPartialHeartbeatKeepsFallback(t *testing.T) {
	path := writeConfig(t, `{"heartbeat": {"interval": 2000}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout())
}

func TestLoadRejectsBothProtocolsDisabled(t *testing.T) {
	path := writeConfig(t, `{
		"plain": {"enabled": false},
		"tls": {"enabled": false}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestLoadRejectsTLSWithoutMaterial(t *testing.T) {
	path := writeConfig(t, `{
		"plain": {"enabled": false},
		"tls": {"enabled": true, "port": 8443}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certFile")
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := writeConfig(t, `{"plain": {"enabled": true, "port": 70000}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestLoadRejectsNonPositiveHeartbeat(t *testing.T) {
	path := writeConfig(t, `{"heartbeat": {"interval": 0, "timeout": 1000}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"plain": `)

	_, err := Load(path)
	require.Error(t, err)
}

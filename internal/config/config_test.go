package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_FallbackDefaults(t *testing.T) {
	dir := t.TempDir()
	clearEnv(t)
	t.Setenv("REGISTRY_FILE", filepath.Join(dir, "missing.yaml"))

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, cfg.NodeID)
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "http://127.0.0.1:8000", cfg.Host)
	require.Equal(t, 9001, cfg.SocketPort)
}

func TestLoad_RegistryDefaultsThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(regPath, []byte(`
nodes:
  - node_id: 2
    host: http://10.0.0.2:8000
    socket_port: 9002
`), 0o644))

	clearEnv(t)
	t.Setenv("NODE_ID", "2")
	t.Setenv("REGISTRY_FILE", regPath)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.2:8000", cfg.Host)
	require.Equal(t, 9002, cfg.SocketPort)

	// Env var still wins over the registry entry.
	t.Setenv("SOCKET_PORT", "9999")
	cfg, err = Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.SocketPort)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NODE_ID", "PORT", "HOST", "SOCKET_PORT", "MESSAGE_DELAY",
		"REGISTRY_FILE", "LOG_AGGREGATOR_HOST", "LOG_AGGREGATOR_PORT",
		"REGISTRY_ROUTE53_ZONE_ID", "REGISTRY_ROUTE53_DOMAIN",
	} {
		t.Setenv(k, "")
	}
}

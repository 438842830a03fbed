// Package config resolves a node's runtime configuration from environment
// variables, an optional .env file, and the static registry entry for its
// node id — in that priority order, mirroring the original system's
// config.py resolution chain (env wins, then the registry's per-node
// defaults, then a hardcoded fallback).
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/loopvia/ringd/internal/registry"
)

// Config is the fully-resolved configuration for one node process.
type Config struct {
	NodeID     int
	Port       int
	Host       string
	SocketPort int

	MessageDelay float64

	RegistryFile string

	LogAggregatorHost string
	LogAggregatorPort int

	RegistryRoute53ZoneID string
	RegistryRoute53Domain string
}

// Load resolves configuration from the environment, optionally overlaying a
// ".env" file first (ignored if absent, exactly like the original project's
// optional config_local.py escape hatch).
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load() // optional; a missing .env is not an error

	cfg := Config{NodeID: 1, Port: 8000, MessageDelay: 0, RegistryFile: "registry.yaml"}

	OverrideInt(&cfg.NodeID, "NODE_ID")
	OverrideString(&cfg.RegistryFile, "REGISTRY_FILE")

	// Step 2: the registry's per-node entry (if any) supplies Host/SocketPort
	// defaults. A missing/invalid registry file is not fatal here — a
	// brand-new node may join a deployment without ever appearing in it.
	if res, err := registry.LoadStatic(cfg.RegistryFile); err == nil {
		if entry, ok, _ := registry.Lookup(ctx, res, cfg.NodeID); ok {
			cfg.Host = entry.Host
			cfg.SocketPort = entry.SocketPort
		}
	}

	// Step 3: hardcoded fallback.
	if cfg.SocketPort == 0 {
		cfg.SocketPort = 9000 + cfg.NodeID
	}

	// Step 1 (highest priority): explicit environment variables.
	OverrideInt(&cfg.Port, "PORT")
	if cfg.Host == "" {
		cfg.Host = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	OverrideString(&cfg.Host, "HOST")
	OverrideInt(&cfg.SocketPort, "SOCKET_PORT")
	OverrideFloat(&cfg.MessageDelay, "MESSAGE_DELAY")

	OverrideString(&cfg.LogAggregatorHost, "LOG_AGGREGATOR_HOST")
	OverrideInt(&cfg.LogAggregatorPort, "LOG_AGGREGATOR_PORT")

	OverrideString(&cfg.RegistryRoute53ZoneID, "REGISTRY_ROUTE53_ZONE_ID")
	OverrideString(&cfg.RegistryRoute53Domain, "REGISTRY_ROUTE53_DOMAIN")

	return cfg, nil
}

// Resolver builds the registry.Resolver this configuration describes:
// Route53-backed if REGISTRY_ROUTE53_ZONE_ID is set, the static YAML file
// otherwise.
func (c Config) Resolver(ctx context.Context) (registry.Resolver, error) {
	if c.RegistryRoute53ZoneID != "" {
		return registry.NewRoute53Resolver(ctx, c.RegistryRoute53ZoneID, c.RegistryRoute53Domain)
	}
	if _, err := os.Stat(c.RegistryFile); err != nil {
		return registry.NewStatic(nil), nil
	}
	return registry.LoadStatic(c.RegistryFile)
}

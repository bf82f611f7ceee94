// Package config provides configuration management for the paper-trading daemon.
// This file centralizes port constants to avoid duplication and ensure consistency.
package config

// Infrastructure Service Ports
const (
	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379
)

// Monitoring Service Ports
const (
	// PrometheusPort is the default port the daemon exposes its own
	// metrics on (§7).
	PrometheusPort = 9100

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000
)

package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the ambient/infra configuration loaded from the environment:
// the domain configuration enumerated in spec §6.4 is loaded separately
// from a JSON file (see Fleet/LoadFleet), since it is the spec's own
// config.js surface rather than an ambient deployment concern.
type Config struct {
	Postgres     Postgres
	Redis        Redis
	OpsBot       OpsBot
	CatalogFetch CatalogFetch
	MetricsAddr  string `env:"METRICS_ADDRESS" envDefault:":9090"`
	ProbeAddr    string `env:"PROBE_ADDRESS" envDefault:":9091"`
}

// OpsBot is the fleet-health alert bot (see internal/infrastructure/notifier).
type OpsBot struct {
	Token  string `env:"OPS_BOT_TOKEN"`
	ChatID int64  `env:"OPS_BOT_CHAT_ID"`
}

// CatalogFetch configures the optional upstream HTTP source that seeds the
// Postgres-backed game/sticker/keychain catalog (internal/infrastructure/
// persistence.CatalogFetcher). URL empty disables the fetch task entirely.
type CatalogFetch struct {
	URL         string `env:"CATALOG_SOURCE_URL"`
	BearerToken string `env:"CATALOG_SOURCE_TOKEN"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var config Config

	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	return config, nil
}

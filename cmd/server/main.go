// Command server is the Inspect Dispatch Fleet's entrypoint: it parses
// the CLI contract (spec §6.5), loads the domain configuration file, and
// drives internal/application.Run until terminated.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"

	"inspectfleet/internal/application"
	"inspectfleet/internal/config"
	"inspectfleet/internal/infrastructure/gc"
)

func main() {
	var configPath, steamData string

	flag.StringVar(&configPath, "c", "./config.js", "path to the domain config file")
	flag.StringVar(&configPath, "config", "./config.js", "path to the domain config file")
	flag.StringVar(&steamData, "s", "", "override bot_settings.steam_user.dataDirectory")
	flag.StringVar(&steamData, "steam_data", "", "override bot_settings.steam_user.dataDirectory")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	slog.SetDefault(log)

	fleetCfg, err := config.LoadFleet(configPath, steamData)
	if err != nil {
		log.Error("load fleet config", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx, log, cancel, fleetCfg, unconfiguredSession, unconfiguredTOTP); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}

	log.Info("application stopped")
}

// unconfiguredSession marks the spec's external-library injection point
// (spec §6.3, §9): this repository defines the wire contract but ships no
// concrete game-coordinator client, so every login attempt fails fast
// with a clear message instead of silently hanging.
func unconfiguredSession(cred gc.Credential) (gc.Session, error) {
	return nil, fmt.Errorf("no game-coordinator session implementation wired for %q; see gc.Session for the contract to implement", cred.AccountName)
}

func unconfiguredTOTP(string) (string, error) {
	return "", errors.New("no TOTP code generator configured")
}

// Package server parses prediction server flags and launches the service.
package server

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/augurrank/internal/platform/cmd"
	"github.com/louisbranch/augurrank/internal/predictions/app"
)

// Config holds server command configuration.
type Config struct {
	Port         int    `env:"AUGURRANK_PORT" envDefault:"8088"`
	DBPath       string `env:"AUGURRANK_DB_PATH" envDefault:"augurrank.db"`
	Challenge    string `env:"AUGURRANK_CHALLENGE" envDefault:"augurrank.com wants you to sign in"`
	TaskEndpoint string `env:"AUGURRANK_TASK_ENDPOINT"`
	TaskKey      string `env:"AUGURRANK_TASK_KEY"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The prediction server HTTP port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite database file")
	fs.StringVar(&cfg.Challenge, "challenge", cfg.Challenge, "Challenge string signed by callers")
	fs.StringVar(&cfg.TaskEndpoint, "task-endpoint", cfg.TaskEndpoint, "URL receiving side-effect task deliveries")
	fs.StringVar(&cfg.TaskKey, "task-key", cfg.TaskKey, "Base64 ed25519 key signing task delivery tokens")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the prediction HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		return app.Run(ctx, app.Config{
			Port:         cfg.Port,
			DBPath:       cfg.DBPath,
			Challenge:    cfg.Challenge,
			TaskEndpoint: cfg.TaskEndpoint,
			TaskKey:      cfg.TaskKey,
		})
	})
}

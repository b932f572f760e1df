// Command unsuggest keeps "Suggested" items out of feed pages.
//
// Usage:
//
//	unsuggest run -config unsuggest.yaml          # watch live pages in Chrome
//	unsuggest filter -url https://host/feed/      # one offline pass over a page
//	unsuggest filter -file saved.html -format markdown
//	unsuggest toggle off                          # via the running daemon
//	unsuggest toggle on -db unsuggest.db          # straight into the store
//	unsuggest status
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/unsuggest/feedwatch"
)

const version = "0.1.0"

func main() {
	cmd := &cli.Command{
		Name:    "unsuggest",
		Usage:   "Remove suggested items from feed pages",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("UNSUGGEST_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			filterCommand(),
			toggleCommand(),
			statusCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("unsuggest: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// flagLevel parses --log-level, falling back to fallback when the flag is
// unset or unparsable.
func flagLevel(cmd *cli.Command, fallback slog.Level) slog.Level {
	if !cmd.IsSet("log-level") {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return fallback
	}
	return level
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (*feedwatch.Config, error) {
	if path == "" {
		return feedwatch.DefaultConfig(), nil
	}
	return feedwatch.LoadConfigFile(path)
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML config file",
		Sources: cli.EnvVars("UNSUGGEST_CONFIG"),
	}
}

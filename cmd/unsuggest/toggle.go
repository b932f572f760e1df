package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hazyhaar/unsuggest/control"
	"github.com/hazyhaar/unsuggest/feedwatch"
	"github.com/hazyhaar/unsuggest/settings"
)

func toggleCommand() *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "enable or disable removal on every watched page",
		ArgsUsage: "on|off",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "control API of a running daemon", Value: feedwatch.DefaultAddr},
			&cli.StringFlag{Name: "db", Usage: "write the settings store directly instead"},
			&cli.StringFlag{Name: "backend", Usage: "settings backend for -db: sqlite or file", Value: settings.BackendSQLite},
		},
		Action: runToggle,
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the enabled flag and per-page status of a running daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "control API of a running daemon", Value: feedwatch.DefaultAddr},
		},
		Action: runStatus,
	}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func runToggle(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(flagLevel(cmd, 0))

	var enabled bool
	switch arg := cmd.Args().First(); arg {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("toggle: want on or off, got %q", arg)
	}

	// A direct write reaches a running daemon through its store watcher.
	if db := cmd.String("db"); db != "" {
		store, err := settings.Open(cmd.String("backend"), db, 0, logger)
		if err != nil {
			return fmt.Errorf("toggle: %w", err)
		}
		defer settings.Close(store)
		if err := store.Set(ctx, enabled); err != nil {
			return fmt.Errorf("toggle: %w", err)
		}
		return printJSON(control.Result{Enabled: enabled, Persisted: true})
	}

	body, _ := json.Marshal(control.SetEnabledRequest{Enabled: &enabled})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, apiURL(cmd, "/api/enabled"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req)
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	newLogger(flagLevel(cmd, 0))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL(cmd, "/api/status"), nil)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return do(req)
}

func apiURL(cmd *cli.Command, path string) string {
	return "http://" + cmd.String("addr") + path
}

// do sends req and copies a 2xx JSON body to stdout.
func do(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(data))
	}
	_, err = os.Stdout.Write(append(bytes.TrimSpace(data), '\n'))
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}

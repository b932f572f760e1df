package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hazyhaar/unsuggest/feedwatch"
)

func filterCommand() *cli.Command {
	return &cli.Command{
		Name:  "filter",
		Usage: "remove suggested items from one page and print the result",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "url", Usage: "page to fetch"},
			&cli.StringFlag{Name: "file", Usage: "saved HTML file, - for stdin"},
			&cli.StringFlag{Name: "format", Value: "html", Usage: "html or markdown"},
			&cli.StringFlag{Name: "cookie", Usage: "raw Cookie header for -url", Sources: cli.EnvVars("UNSUGGEST_COOKIE")},
			&cli.BoolFlag{Name: "browser", Usage: "render script-only pages in Chrome"},
			&cli.DurationFlag{Name: "settle", Usage: "time given to scripts before capture"},
			&cli.BoolFlag{Name: "report", Usage: "write one JSON removal report per line to stderr"},
		},
		Action: runFilter,
	}
}

func runFilter(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	logger := newLogger(flagLevel(cmd, cfg.LogLevel))

	format := cmd.String("format")
	if format != "html" && format != "markdown" {
		return fmt.Errorf("filter: unknown format %q", format)
	}

	pageURL := cmd.String("url")
	var src []byte
	switch {
	case pageURL != "":
		src, err = feedwatch.Acquire(ctx, cfg, pageURL, feedwatch.AcquireOptions{
			Cookie:  cmd.String("cookie"),
			Browser: cmd.Bool("browser"),
			Settle:  cmd.Duration("settle"),
		}, logger)
	case cmd.String("file") == "-":
		src, err = io.ReadAll(os.Stdin)
	case cmd.String("file") != "":
		src, err = os.ReadFile(cmd.String("file"))
	default:
		return errors.New("filter: one of -url or -file is required")
	}
	if err != nil {
		return err
	}

	cleaned, err := feedwatch.Clean(bytes.NewReader(src), pageURL, cfg.Rules, logger)
	if err != nil {
		return err
	}

	if cmd.Bool("report") {
		enc := json.NewEncoder(os.Stderr)
		for _, r := range cleaned.Removals {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("filter: report: %w", err)
			}
		}
	}

	if format == "markdown" {
		md, err := cleaned.Markdown(ctx, pageURL)
		if err != nil {
			return err
		}
		_, err = io.WriteString(os.Stdout, md)
		return err
	}
	return cleaned.Doc.Render(os.Stdout)
}

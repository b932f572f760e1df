package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/unsuggest/control"
	"github.com/hazyhaar/unsuggest/feedwatch"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/settings"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "watch the configured pages and serve the control API",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "addr", Usage: "control API listen address (overrides control.addr)"},
			&cli.BoolFlag{Name: "mcp", Usage: "serve the MCP tools on stdio"},
		},
		Action: runDaemon,
	}
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if cmd.IsSet("addr") {
		cfg.Control.Addr = cmd.String("addr")
	}
	if cmd.Bool("mcp") {
		cfg.Control.MCP = true
	}
	logger := newLogger(flagLevel(cmd, cfg.LogLevel))

	store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path, cfg.Settings.PollInterval, logger)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer settings.Close(store)

	hub := notify.NewHub(notify.WithLogger(logger))
	defer hub.Close()

	sender := control.NewSender(store, hub,
		control.WithSite(cfg.Control.Site),
		control.WithLogger(logger),
	)

	// stdout carries JSON-RPC when MCP is on.
	var sinkOut io.Writer = os.Stdout
	if cfg.Control.MCP {
		sinkOut = os.Stderr
	}
	w, err := feedwatch.New(cfg, hub, store, logger, feedwatch.SinksFromConfig(cfg, sinkOut, logger)...)
	if err != nil {
		return err
	}
	svc := control.NewService(sender, w, hub, logger)

	srv := &http.Server{
		Addr:              cfg.Control.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		logger.Info("unsuggest: control API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("unsuggest: control API shutdown", "error", err)
		}
		return nil
	})
	if sw, ok := store.(settings.Watcher); ok {
		g.Go(func() error {
			return sw.Watch(gctx, func() error { return sender.Sync(gctx) })
		})
	}
	if cfg.Control.MCP {
		g.Go(func() error { return serveMCP(gctx, svc, logger) })
	}

	logger.Info("unsuggest: started", "pages", len(cfg.Pages), "site", cfg.Control.Site)
	err = g.Wait()
	logger.Info("unsuggest: stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMCP runs one MCP session on stdin/stdout. The session ending does
// not stop the daemon.
func serveMCP(ctx context.Context, svc *control.Service, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "unsuggest", Version: version}, nil)
	svc.RegisterMCP(srv)

	logger.Info("unsuggest: MCP serving on stdio")
	err := srv.Run(ctx, &mcp.IOTransport{Reader: os.Stdin, Writer: os.Stdout})
	if err != nil && ctx.Err() == nil {
		logger.Warn("unsuggest: MCP session ended", "error", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/example/go-maap/internal/config"
	"github.com/example/go-maap/internal/dashboard"
	"github.com/example/go-maap/internal/server"
	"github.com/example/go-maap/internal/session"
	"github.com/example/go-maap/pkg/mapview"
)

func newSessionCommand() *cli.Command {
	return &cli.Command{
		Name:   "session",
		Usage:  "Run the dashboard interactively, reading one action per line from stdin",
		Action: executeSession,
	}
}

func executeSession(ctx context.Context, cmd *cli.Command) error {
	dash, view, closeCache, err := startDashboard(ctx, configFrom(ctx))
	if err != nil {
		return err
	}
	defer closeCache()
	fmt.Fprintln(os.Stdout, "Loading collections in the background; type help for commands.")
	return session.New(dash, view, os.Stdout).Run(ctx, os.Stdin)
}

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dashboard as a JSON API for a browser map",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.addr from config)",
			},
		},
		Action: executeServe,
	}
}

func executeServe(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}
	dash, view, closeCache, err := startDashboard(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := server.New(dash, view, slog.Default())
	return srv.ListenAndServe(ctx, &http.Server{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
}

// startDashboard wires the catalog, cache and map into a dashboard and starts
// the background collection load.
func startDashboard(ctx context.Context, cfg *config.Config) (*dashboard.Dashboard, *mapview.MapView, func(), error) {
	catalog, closeCache := buildCatalog(ctx, cfg, buildClient(cfg))
	view := mapview.New(cfg.Tiles.TileLayer())
	dash := dashboard.New(catalog, view, dashboard.WithLogger(slog.Default()))
	if err := dash.Start(ctx); err != nil {
		closeCache()
		return nil, nil, nil, err
	}
	return dash, view, closeCache, nil
}

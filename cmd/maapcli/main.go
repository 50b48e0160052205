package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/example/go-maap/internal/cache"
	"github.com/example/go-maap/internal/config"
	internalhttp "github.com/example/go-maap/internal/http"
	"github.com/example/go-maap/internal/logging"
	"github.com/example/go-maap/pkg/cmr"
)

func main() {
	root := &cli.Command{
		Name:    "maapcli",
		Usage:   "Search the MAAP catalog, render granules as map tile layers and download them",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file (default: ./maap.yaml if present)",
				Sources: cli.EnvVars("MAAP_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "catalog-host",
				Usage: "Catalog host, e.g. https://cmr.maap-project.org",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Provider used to scope collection searches",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Provide a bearer token for authenticated requests",
				Sources: cli.EnvVars("MAAP_TOKEN"),
			},
			&cli.StringFlag{
				Name:  "tile-host",
				Usage: "Tile server host used for layer templates",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP client timeout",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Extra attempts for transient catalog failures (default 0: no retry)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text or json)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			newCollectionsCommand(),
			newGranulesCommand(),
			newTilesCommand(),
			newDownloadCommand(),
			newSessionCommand(),
			newServeCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

type ctxKey struct{}

// setup loads the configuration, applies root flag overrides and configures
// logging. The result is stored on the context for subcommands.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(strings.TrimSpace(cmd.String("config")))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("catalog-host") {
		cfg.Catalog.Host = strings.TrimSpace(cmd.String("catalog-host"))
	}
	if cmd.IsSet("provider") {
		cfg.Catalog.Provider = strings.TrimSpace(cmd.String("provider"))
	}
	if cmd.IsSet("token") {
		cfg.Catalog.Token = strings.TrimSpace(cmd.String("token"))
	}
	if cmd.IsSet("tile-host") {
		cfg.Tiles.Host = strings.TrimSpace(cmd.String("tile-host"))
	}
	if cmd.IsSet("timeout") {
		cfg.Catalog.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("retries") {
		cfg.Catalog.Retries = int(cmd.Int("retries"))
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return context.WithValue(ctx, ctxKey{}, cfg), nil
}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*config.Config); ok {
		return cfg
	}
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func buildClient(cfg *config.Config) *cmr.Client {
	opts := []cmr.Option{
		cmr.WithBaseURL(cfg.Catalog.Host),
		cmr.WithProvider(cfg.Catalog.Provider),
		cmr.WithUserAgent("maapcli/0.1.0"),
		cmr.WithHTTPClient(cmr.NewHTTPClient(cfg.Catalog.Timeout)),
		cmr.WithS3Region(cfg.Catalog.S3Region),
	}
	if cfg.Catalog.Token != "" {
		opts = append(opts, cmr.WithAuthToken(cfg.Catalog.Token))
	}
	if cfg.Catalog.Retries > 0 {
		opts = append(opts, cmr.WithRetryPolicy(internalhttp.BackoffPolicy(cfg.Catalog.Retries+1, 500*time.Millisecond)))
	}
	if cfg.Catalog.S3CredentialsURL != "" {
		opts = append(opts, cmr.WithS3CredentialsURL(cfg.Catalog.S3CredentialsURL))
	}
	return cmr.NewClient(opts...)
}

// buildCatalog wraps the client with the configured collection cache. The
// returned close function releases the cache connection.
func buildCatalog(ctx context.Context, cfg *config.Config, client *cmr.Client) (cache.Catalog, func()) {
	key := cache.Key(cfg.Catalog.Host, cfg.Catalog.Provider)
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewCachingCatalog(client, cache.NewMemory(), key, cfg.Cache.TTL), func() {}
	case "redis":
		store := cache.OpenRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err := store.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, collection cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
			store.Close()
			return client, func() {}
		}
		return cache.NewCachingCatalog(client, store, key, cfg.Cache.TTL), func() { store.Close() }
	default:
		return client, func() {}
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

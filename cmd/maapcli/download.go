package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/example/go-maap/pkg/cmr"
)

func newDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download granules given as arguments, or all granules of a collection inside a box",
		ArgsUsage: "[GRANULE_URL...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "collection",
				Usage:   "Search this collection and download every result",
				Aliases: []string{"c"},
			},
			bboxFlag(false),
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Destination directory (default: download.dir from config)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Parallel downloads (default: download.concurrency from config)",
			},
			&cli.StringFlag{
				Name:  "s3-credentials-url",
				Usage: "Endpoint issuing temporary AWS credentials for s3:// granules",
			},
		},
		Action: executeDownload,
	}
}

func executeDownload(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	if cmd.IsSet("s3-credentials-url") {
		cfg.Catalog.S3CredentialsURL = strings.TrimSpace(cmd.String("s3-credentials-url"))
	}
	client := buildClient(cfg)

	refs := trimStrings(cmd.Args().Slice())
	if collection := strings.TrimSpace(cmd.String("collection")); collection != "" {
		box, err := parseBox(cmd)
		if err != nil {
			return err
		}
		found, err := client.SearchGranules(ctx, collection, box)
		if err != nil {
			return fmt.Errorf("granules: %w", err)
		}
		refs = append(refs, found...)
	}
	if len(refs) == 0 {
		fmt.Fprintln(os.Stdout, "No granules to download.")
		return nil
	}

	dir := cfg.Download.Dir
	if cmd.IsSet("dir") {
		dir = strings.TrimSpace(cmd.String("dir"))
	}
	concurrency := cfg.Download.Concurrency
	if cmd.IsSet("concurrency") {
		concurrency = int(cmd.Int("concurrency"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	var mu sync.Mutex
	progress := func(p cmr.FileProgress) {
		// Unknown sizes report every write; only print completed files.
		if p.Total <= 0 || p.Downloaded < p.Total {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(os.Stderr, "%s: %d bytes\n", p.FileName, p.Downloaded)
	}

	fmt.Fprintf(os.Stderr, "Downloading %d granule(s) to %s...\n", len(refs), dir)
	if err := client.DownloadAll(ctx, refs, dir, cmr.WithDownloadConcurrency(concurrency), cmr.WithProgress(progress)); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

func trimStrings(values []string) []string {
	var result []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

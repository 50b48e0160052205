package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb/maptile"
	"github.com/urfave/cli/v3"

	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "output",
		Usage: "Output format (text or json)",
		Value: "text",
	}
}

func bboxFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "bbox",
		Usage:    "Bounding box minLon,minLat,maxLon,maxLat (default 0,0,0,0)",
		Required: required,
	}
}

func newCollectionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "collections",
		Usage:  "List the provider's collections (first 100)",
		Flags:  []cli.Flag{outputFlag()},
		Action: executeCollections,
	}
}

func executeCollections(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	catalog, closeCache := buildCatalog(ctx, cfg, buildClient(cfg))
	defer closeCache()

	names, err := catalog.SearchCollections(ctx)
	if err != nil {
		return fmt.Errorf("collections: %w", err)
	}
	return printList(cmd, names, "No collections found.")
}

func newGranulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "granules",
		Usage: "List granules of a collection inside a bounding box",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "collection",
				Usage:    "Collection short name",
				Aliases:  []string{"c"},
				Required: true,
			},
			bboxFlag(false),
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Page size sent to the catalog (default: catalog default)",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Reject boxes with unordered or out-of-range corners",
			},
			outputFlag(),
		},
		Action: executeGranules,
	}
}

func executeGranules(ctx context.Context, cmd *cli.Command) error {
	box, err := parseBox(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("strict") {
		if err := box.Validate(); err != nil {
			return err
		}
	}
	client := buildClient(configFrom(ctx))
	refs, err := client.SearchGranulesQuery(ctx, cmr.GranuleQuery{
		ShortName: strings.TrimSpace(cmd.String("collection")),
		Box:       box,
		PageSize:  int(cmd.Int("page-size")),
	})
	if err != nil {
		return fmt.Errorf("granules: %w", err)
	}
	return printList(cmd, refs, "No granules found.")
}

func newTilesCommand() *cli.Command {
	return &cli.Command{
		Name:      "tiles",
		Usage:     "Print the tile layer template for a granule and the tile URLs covering a box",
		ArgsUsage: "ASSET_URL",
		Flags: []cli.Flag{
			bboxFlag(false),
			&cli.IntFlag{
				Name:  "zoom",
				Usage: "Zoom level for tile URLs; omit to print only the template",
				Value: -1,
			},
		},
		Action: executeTiles,
	}
}

func executeTiles(ctx context.Context, cmd *cli.Command) error {
	asset := strings.TrimSpace(cmd.Args().First())
	if asset == "" {
		return fmt.Errorf("tiles: ASSET_URL argument is required")
	}
	layer := configFrom(ctx).Tiles.TileLayer()
	template := layer.Template(asset)
	fmt.Fprintln(os.Stdout, template)

	zoom := int(cmd.Int("zoom"))
	if zoom < 0 {
		return nil
	}
	if zoom > mapview.MaxZoom {
		return fmt.Errorf("tiles: zoom %d out of range 0-%d", zoom, mapview.MaxZoom)
	}
	box, err := parseBox(cmd)
	if err != nil {
		return err
	}
	tiles, err := mapview.TilesCovering(box, maptile.Zoom(zoom))
	if err != nil {
		return fmt.Errorf("tiles: %w", err)
	}
	for _, tile := range tiles {
		fmt.Fprintln(os.Stdout, mapview.TileURL(template, tile))
	}
	return nil
}

func parseBox(cmd *cli.Command) (cmr.BoundingBox, error) {
	value := strings.TrimSpace(cmd.String("bbox"))
	if value == "" {
		return cmr.BoundingBox{}, nil
	}
	return cmr.ParseBoundingBox(value)
}

func printList(cmd *cli.Command, items []string, empty string) error {
	switch output := strings.ToLower(strings.TrimSpace(cmd.String("output"))); output {
	case "json":
		if items == nil {
			items = []string{}
		}
		return writeJSON(os.Stdout, items)
	case "text":
		if len(items) == 0 {
			fmt.Fprintln(os.Stdout, empty)
			return nil
		}
		for _, item := range items {
			fmt.Fprintln(os.Stdout, item)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", output)
	}
}

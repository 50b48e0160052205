// Package session runs the dashboard as a line-oriented interactive loop.
// Each input line is one user action; failures are printed and the loop goes
// on.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/example/go-maap/internal/dashboard"
	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

const helpText = `commands:
  state                      show the dashboard state
  draw MINLON,MINLAT,MAXLON,MAXLAT
                             draw the selection box on the map
  clear                      remove the drawn box
  capture                    capture the drawn box (update geometry)
  collections                list collections
  select NAME|N              select a collection by name or list number
  search                     search granules in the captured box
  granules                   list granules
  pick REF|N                 select a granule by URL or list number
  layer                      render the selected granule as a tile layer
  layers                     list rendered layers
  reload                     fetch the collection list again
  help                       show this text
  quit                       leave the session
`

// Session reads commands and applies them to a dashboard and its map.
type Session struct {
	dash *dashboard.Dashboard
	view *mapview.MapView
	out  io.Writer
}

func New(dash *dashboard.Dashboard, view *mapview.MapView, out io.Writer) *Session {
	return &Session{dash: dash, view: view, out: out}
}

// Run processes lines from in until EOF, "quit" or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			s.prompt()
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := s.exec(ctx, cmd, arg); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *Session) prompt() {
	fmt.Fprintf(s.out, "[%s] > ", s.dash.Snapshot().State)
}

var errUsage = errors.New("usage")

func (s *Session) exec(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "help":
		fmt.Fprint(s.out, helpText)
	case "state":
		s.printState(s.dash.Snapshot())
	case "draw":
		box, err := cmr.ParseBoundingBox(arg)
		if err != nil {
			return err
		}
		s.view.Draw(box)
		fmt.Fprintf(s.out, "drawn %s\n", box)
	case "clear":
		s.view.Clear()
		fmt.Fprintln(s.out, "cleared")
	case "capture":
		snap := s.dash.UpdateGeometry()
		fmt.Fprintf(s.out, "captured %s\n", snap.Box)
	case "collections":
		snap := s.dash.Snapshot()
		if snap.Catalog != dashboard.CatalogReady {
			fmt.Fprintf(s.out, "collections %s\n", snap.Catalog)
			return nil
		}
		printList(s.out, snap.Collections, snap.SelectedCollection)
	case "select":
		name, err := pick(arg, s.dash.Snapshot().Collections)
		if err != nil {
			return err
		}
		snap, err := s.dash.SelectCollection(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "selected collection %s\n", snap.SelectedCollection)
	case "search":
		snap, err := s.dash.SearchGranules(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d granules in %s\n", len(snap.Granules), snap.GranuleBox)
		printList(s.out, snap.Granules, "")
	case "granules":
		snap := s.dash.Snapshot()
		if snap.GranulesStale() {
			fmt.Fprintln(s.out, "warning: box changed since the last search")
		}
		printList(s.out, snap.Granules, snap.SelectedGranule)
	case "pick":
		ref, err := pick(arg, s.dash.Snapshot().Granules)
		if err != nil {
			return err
		}
		snap, err := s.dash.SelectGranule(ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "selected granule %s\n", snap.SelectedGranule)
	case "layer":
		snap, err := s.dash.AddLayer()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "layer %d %s\n", snap.Layer.ID, snap.Layer.URLTemplate)
	case "layers":
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tASSET\tTEMPLATE")
		for _, layer := range s.view.Layers() {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", layer.ID, layer.AssetURL, layer.URLTemplate)
		}
		tw.Flush()
	case "reload":
		snap, err := s.dash.Load(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d collections\n", len(snap.Collections))
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (s *Session) printState(snap dashboard.Snapshot) {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "state\t%s\n", snap.State)
	fmt.Fprintf(tw, "revision\t%d\n", snap.Revision)
	fmt.Fprintf(tw, "catalog\t%s\n", snap.Catalog)
	if snap.LoadError != "" {
		fmt.Fprintf(tw, "load error\t%s\n", snap.LoadError)
	}
	fmt.Fprintf(tw, "box\t%s\n", snap.Box)
	fmt.Fprintf(tw, "collections\t%d\n", len(snap.Collections))
	fmt.Fprintf(tw, "collection\t%s\n", orNone(snap.SelectedCollection))
	fmt.Fprintf(tw, "granules\t%d\n", len(snap.Granules))
	fmt.Fprintf(tw, "granule\t%s\n", orNone(snap.SelectedGranule))
	if snap.Layer != nil {
		fmt.Fprintf(tw, "layer\t%d\n", snap.Layer.ID)
	}
	tw.Flush()
}

// pick resolves arg as a listed name, a 1-based list number or a literal
// value, in that order.
func pick(arg string, list []string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: a name or list number is required", errUsage)
	}
	if slices.Contains(list, arg) {
		return arg, nil
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("%w: number %d out of range 1-%d", errUsage, n, len(list))
		}
		return list[n-1], nil
	}
	return arg, nil
}

func printList(w io.Writer, items []string, selected string) {
	for i, item := range items {
		marker := " "
		if item == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %3d  %s\n", marker, i+1, item)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

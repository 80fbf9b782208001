package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"eaglelink/internal/config"
	"eaglelink/internal/eagle"
	"eaglelink/internal/logging"
	"eaglelink/internal/vault"
)

// Thumbnails missing from search results are filled by asking Eagle
// per item, a few at a time.
const thumbnailPoolSize = 6

type searchRow struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Ext        string   `json:"ext,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Annotation string   `json:"annotation,omitempty"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
}

func main() {
	logging.Setup()
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("eagle-search", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var (
		asJSON   bool
		limit    int
		offset   int
		orderBy  string
		notePath string
	)
	fs.BoolVar(&asJSON, "json", false, "emit results as a JSON array")
	fs.IntVar(&limit, "limit", 100, "maximum number of results")
	fs.IntVar(&offset, "offset", 0, "result page offset")
	fs.StringVar(&orderBy, "order-by", "time", "result ordering passed to Eagle")
	fs.StringVar(&notePath, "note", "", "vault-relative note to append a picked result to")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(errOut, "usage: eagle-search [--json] [--limit <n>] [--note <rel.md>] <keyword>...")
		return 2
	}
	if asJSON && notePath != "" {
		_, _ = fmt.Fprintln(errOut, "ERROR: --note cannot be combined with --json")
		return 2
	}
	keyword := strings.Join(fs.Args(), " ")

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := eagle.NewClient(&cfg)
	uploader := eagle.NewUploader(&cfg, client, nil)

	items, err := uploader.SearchItems(ctx, eagle.SearchQuery{Keyword: keyword, Limit: limit, Offset: offset, OrderBy: orderBy})
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	rows := buildRows(ctx, uploader, items)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			_, _ = fmt.Fprintf(errOut, "ERROR: encode results: %v\n", err)
			return 1
		}
		return 0
	}

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return 0
	}
	for i, row := range rows {
		name := row.Name
		if row.Ext != "" {
			name += "." + row.Ext
		}
		_, _ = fmt.Fprintf(out, "%d) %s (id=%s)\n", i+1, name, row.ID)
		if len(row.Tags) > 0 {
			_, _ = fmt.Fprintf(out, "   tags      : %s\n", strings.Join(row.Tags, ", "))
		}
		if row.Annotation != "" {
			_, _ = fmt.Fprintf(out, "   annotation: %s\n", row.Annotation)
		}
		if row.Thumbnail != "" {
			_, _ = fmt.Fprintf(out, "   thumbnail : %s\n", row.Thumbnail)
		}
	}
	_, _ = fmt.Fprintf(out, "keyword=%q results=%d\n", keyword, len(rows))

	if notePath != "" {
		if err := insertPicked(ctx, &cfg, uploader, items, notePath, errOut); err != nil {
			_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
			return 1
		}
	}
	return 0
}

// insertPicked asks for a result number on the terminal and appends the
// chosen item's embed to the note.
func insertPicked(ctx context.Context, cfg *config.Config, uploader *eagle.Uploader, items []eagle.Item, notePath string, errOut io.Writer) error {
	if len(items) == 0 {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal; --note needs an interactive pick")
	}
	if cfg.VaultPath == "" {
		return fmt.Errorf("EAGLE_VAULT_PATH is required with --note")
	}

	_, _ = fmt.Fprintf(errOut, "Insert which result? [1-%d, empty to skip]: ", len(items))
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}
	pick, err := strconv.Atoi(answer)
	if err != nil || pick < 1 || pick > len(items) {
		return fmt.Errorf("invalid selection %q", answer)
	}
	item := items[pick-1]

	url, err := uploader.ResolveFileURL(ctx, item)
	if err != nil {
		return err
	}

	store, err := vault.Open(cfg.VaultPath)
	if err != nil {
		return err
	}
	content, err := store.ReadNote(notePath)
	if err != nil {
		return err
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += vault.EmbedFor(item.ID, url) + "\n"
	return store.WriteNote(notePath, content)
}

// buildRows resolves display thumbnails, backfilling missing ones from
// the item endpoint with a bounded pool. Backfill failures leave the
// thumbnail empty rather than failing the search.
func buildRows(ctx context.Context, uploader *eagle.Uploader, items []eagle.Item) []searchRow {
	rows := make([]searchRow, len(items))
	for i, item := range items {
		rows[i] = searchRow{
			ID:         item.ID,
			Name:       item.Name,
			Ext:        item.Ext,
			Tags:       item.Tags,
			Annotation: item.Annotation,
		}
		if item.Thumbnail != "" {
			rows[i].Thumbnail = uploader.ResolveSearchThumbnailURL(item.Thumbnail)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(thumbnailPoolSize)
	for i := range rows {
		if rows[i].Thumbnail != "" {
			continue
		}
		g.Go(func() error {
			url, err := uploader.FileURLForItemID(gctx, rows[i].ID)
			if err == nil {
				rows[i].Thumbnail = url
			}
			return nil
		})
	}
	_ = g.Wait()

	return rows
}

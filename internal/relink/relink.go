// Package relink repairs Eagle image embeds across a vault: it finds
// embeds that carry an item id, asks the running Eagle instance for the
// item's current location, and rewrites stale links in place.
package relink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"eaglelink/internal/eagle"
	"eaglelink/internal/mdimage"
	"eaglelink/internal/vault"
)

const defaultConcurrency = 8

var (
	altIDPattern = regexp.MustCompile(`^eagle:([A-Za-z0-9]+)$`)
	// Library-layout ids inside a link path are only trusted when the
	// link is an actual file:// URL into an Eagle library.
	legacyIDPattern = regexp.MustCompile(`[\\/]+images[\\/]+([^\\/]+)\.info[\\/]+`)
)

// Options controls one relink run. Confirm, when set, is consulted
// with the pending file and link counts before anything is written; a
// false answer aborts the write phase.
type Options struct {
	Concurrency int
	DryRun      bool
	Confirm     func(files, links int) (bool, error)
}

// Report summarizes what a run did, or would do under dry-run.
type Report struct {
	FilesScanned   int
	CandidateLinks int
	UpdatedLinks   int
	UpdatedFiles   int
	FailedItemIDs  []string
	Diffs          []string
}

type resolver interface {
	FileURLForItemID(ctx context.Context, itemID string) (string, error)
}

// Engine walks notes and rewrites embeds against live Eagle state.
type Engine struct {
	store    *vault.Vault
	uploader resolver
}

func New(store *vault.Vault, uploader resolver) *Engine {
	return &Engine{store: store, uploader: uploader}
}

// itemIDFromToken extracts the Eagle item id an embed refers to, if
// any. The alt-text form is authoritative; the legacy path form is a
// fallback for embeds written before ids moved into the alt text.
func itemIDFromToken(tok mdimage.Token) string {
	if m := altIDPattern.FindStringSubmatch(tok.Alt); m != nil {
		return m[1]
	}
	if strings.HasPrefix(tok.Link, "file://") {
		if m := legacyIDPattern.FindStringSubmatch(tok.Link); m != nil {
			return m[1]
		}
	}
	return ""
}

// Run scans the given notes, resolves every referenced item id with a
// bounded worker pool, and splices fresh links back to front so earlier
// token offsets stay valid.
func (e *Engine) Run(ctx context.Context, notes []string, opts Options) (Report, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	report := Report{FilesScanned: len(notes)}

	type doc struct {
		path    string
		content string
		tokens  []mdimage.Token
	}

	var docs []doc
	ids := make(map[string]struct{})
	for _, note := range notes {
		content, err := e.store.ReadNote(note)
		if err != nil {
			return report, err
		}
		var kept []mdimage.Token
		for _, tok := range mdimage.Scan(content) {
			if itemIDFromToken(tok) == "" {
				continue
			}
			kept = append(kept, tok)
			ids[itemIDFromToken(tok)] = struct{}{}
		}
		if len(kept) > 0 {
			docs = append(docs, doc{path: note, content: content, tokens: kept})
			report.CandidateLinks += len(kept)
		}
	}
	if len(docs) == 0 {
		return report, nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	sort.Strings(idList)

	resolved := make(map[string]string, len(idList))
	var (
		resolvedMu sync.Mutex
		failedMu   sync.Mutex
		cursor     atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency && w < len(idList); w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(idList) {
					return nil
				}
				id := idList[i]
				url, err := e.uploader.FileURLForItemID(gctx, id)
				if err != nil {
					var connErr *eagle.ConnectionError
					if errors.As(err, &connErr) {
						return err
					}
					slog.Warn("item resolution failed", "item", id, "error", err)
					failedMu.Lock()
					report.FailedItemIDs = append(report.FailedItemIDs, id)
					failedMu.Unlock()
					continue
				}
				// Only real file URLs are worth rewriting to; a degraded
				// eagle:// link means the id is still unresolved.
				if !strings.HasPrefix(url, "file://") {
					slog.Warn("item resolved without a file url", "item", id, "url", url)
					failedMu.Lock()
					report.FailedItemIDs = append(report.FailedItemIDs, id)
					failedMu.Unlock()
					continue
				}
				resolvedMu.Lock()
				resolved[id] = url
				resolvedMu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Strings(report.FailedItemIDs)

	type pending struct {
		path    string
		before  string
		after   string
		changed int
	}
	var writes []pending
	for _, d := range docs {
		updated, changed := rewriteDoc(d.content, d.tokens, resolved)
		if changed == 0 {
			continue
		}
		writes = append(writes, pending{path: d.path, before: d.content, after: updated, changed: changed})
		report.UpdatedLinks += changed
	}
	report.UpdatedFiles = len(writes)

	if opts.DryRun {
		for _, w := range writes {
			report.Diffs = append(report.Diffs, renderDiff(w.path, w.before, w.after))
		}
		return report, nil
	}

	if len(writes) > 0 && opts.Confirm != nil {
		ok, err := opts.Confirm(len(writes), report.UpdatedLinks)
		if err != nil {
			return report, err
		}
		if !ok {
			report.UpdatedLinks = 0
			report.UpdatedFiles = 0
			return report, nil
		}
	}

	for _, w := range writes {
		if err := e.store.WriteNote(w.path, w.after); err != nil {
			return report, err
		}
		slog.Info("relinked note", "path", w.path, "links", w.changed)
	}

	return report, nil
}

// composeAlt upgrades the alt text to the canonical id marker only when
// it is empty or already an id marker. A user-authored caption stays.
func composeAlt(alt, itemID string) string {
	trimmed := strings.TrimSpace(alt)
	if trimmed == "" || altIDPattern.MatchString(trimmed) {
		return "eagle:" + itemID
	}
	return alt
}

// rewriteDoc splices fresh embeds from the highest offset down, so
// lower token spans are untouched by earlier edits.
func rewriteDoc(content string, tokens []mdimage.Token, resolved map[string]string) (string, int) {
	ordered := make([]mdimage.Token, len(tokens))
	copy(ordered, tokens)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	changed := 0
	for _, tok := range ordered {
		id := itemIDFromToken(tok)
		url, ok := resolved[id]
		if !ok {
			continue
		}
		replacement := "![" + composeAlt(tok.Alt, id) + "](" + url + ")"
		if content[tok.Start:tok.End] == replacement {
			continue
		}
		content = content[:tok.Start] + replacement + content[tok.End:]
		changed++
	}
	return content, changed
}

// renderDiff produces a line-oriented preview of a pending rewrite.
func renderDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(src, dst, false), lines)

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", path)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

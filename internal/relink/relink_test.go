package relink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"eaglelink/internal/eagle"
	"eaglelink/internal/mdimage"
	"eaglelink/internal/vault"
)

type fakeResolver struct {
	urls map[string]string
	errs map[string]error
}

func (f *fakeResolver) FileURLForItemID(_ context.Context, itemID string) (string, error) {
	if err, ok := f.errs[itemID]; ok {
		return "", err
	}
	if url, ok := f.urls[itemID]; ok {
		return url, nil
	}
	return "eagle://item/" + itemID, nil
}

func newEngine(t *testing.T, notes map[string]string, resolver *fakeResolver) (*Engine, *vault.Vault) {
	t.Helper()
	store, err := vault.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	for path, content := range notes {
		if err := store.WriteNote(path, content); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	return New(store, resolver), store
}

func TestItemIDFromToken(t *testing.T) {
	cases := []struct {
		name string
		tok  mdimage.Token
		want string
	}{
		{
			"alt form",
			mdimage.Token{Alt: "eagle:ABC123", Link: "file:///anything.png"},
			"ABC123",
		},
		{
			"alt form rejects extra text",
			mdimage.Token{Alt: "eagle:ABC123 caption", Link: "x"},
			"",
		},
		{
			"legacy path with file scheme",
			mdimage.Token{Alt: "", Link: "file:///lib/images/OLD9.info/pic.png"},
			"OLD9",
		},
		{
			"legacy path without file scheme untrusted",
			mdimage.Token{Alt: "", Link: "/lib/images/OLD9.info/pic.png"},
			"",
		},
		{
			"plain local link",
			mdimage.Token{Alt: "shot", Link: "attachments/shot.png"},
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := itemIDFromToken(tc.tok); got != tc.want {
				t.Fatalf("itemIDFromToken(%+v) = %q, want %q", tc.tok, got, tc.want)
			}
		})
	}
}

func TestRunRewritesAcrossFiles(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{
		"ITEM123": "file:///new/lib/images/ITEM123.info/pic.png",
	}}
	engine, store := newEngine(t, map[string]string{
		"a.md": "intro\n![eagle:ITEM123](file:///old/lib/images/ITEM123.info/pic.png)\n",
		"b.md": "![](file:///old/lib/images/ITEM123.info/pic.png)\n",
		"c.md": "no links here\n",
	}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md", "b.md", "c.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.FilesScanned != 3 || report.CandidateLinks != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.UpdatedLinks != 2 || report.UpdatedFiles != 2 {
		t.Fatalf("report = %+v", report)
	}

	want := "![eagle:ITEM123](file:///new/lib/images/ITEM123.info/pic.png)"
	for _, note := range []string{"a.md", "b.md"} {
		content, err := store.ReadNote(note)
		if err != nil {
			t.Fatalf("read %s: %v", note, err)
		}
		if !strings.Contains(content, want) {
			t.Fatalf("%s = %q, want embed %q", note, content, want)
		}
	}

	// Legacy embeds gain the id in the alt text.
	content, _ := store.ReadNote("b.md")
	if strings.Contains(content, "![](") {
		t.Fatalf("legacy alt not upgraded: %q", content)
	}
}

func TestRunPreservesCustomAltText(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{
		"ITEM123": "file:///new/lib/images/ITEM123.info/pic.png",
	}}
	engine, store := newEngine(t, map[string]string{
		"a.md": "![my chart](file:///old/lib/images/ITEM123.info/pic.png)\n",
	}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UpdatedLinks != 1 {
		t.Fatalf("report = %+v", report)
	}

	content, _ := store.ReadNote("a.md")
	want := "![my chart](file:///new/lib/images/ITEM123.info/pic.png)\n"
	if content != want {
		t.Fatalf("caption must survive the rewrite: got %q, want %q", content, want)
	}
}

func TestComposeAlt(t *testing.T) {
	cases := []struct {
		name string
		alt  string
		id   string
		want string
	}{
		{"empty gains marker", "", "NEW1", "eagle:NEW1"},
		{"stale marker replaced", "eagle:OLD9", "NEW1", "eagle:NEW1"},
		{"current marker kept", "eagle:NEW1", "NEW1", "eagle:NEW1"},
		{"caption kept", "my chart", "NEW1", "my chart"},
		{"caption mentioning id kept", "eagle:NEW1 overview", "NEW1", "eagle:NEW1 overview"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := composeAlt(tc.alt, tc.id); got != tc.want {
				t.Fatalf("composeAlt(%q, %q) = %q, want %q", tc.alt, tc.id, got, tc.want)
			}
		})
	}
}

func TestRunLeavesCurrentLinksAlone(t *testing.T) {
	url := "file:///lib/images/SAME.info/pic.png"
	resolver := &fakeResolver{urls: map[string]string{"SAME": url}}
	engine, store := newEngine(t, map[string]string{
		"a.md": "![eagle:SAME](" + url + ")\n",
	}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UpdatedLinks != 0 || report.UpdatedFiles != 0 {
		t.Fatalf("up-to-date link rewritten: %+v", report)
	}
	content, _ := store.ReadNote("a.md")
	if content != "![eagle:SAME]("+url+")\n" {
		t.Fatalf("content changed: %q", content)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	resolver := &fakeResolver{
		urls: map[string]string{"GOOD": "file:///lib/images/GOOD.info/g.png"},
		errs: map[string]error{"BAD": &eagle.APIError{Message: "missing"}},
	}
	engine, store := newEngine(t, map[string]string{
		"a.md": "![eagle:GOOD](file:///stale/GOOD.png)\n![eagle:BAD](file:///stale/BAD.png)\n",
	}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UpdatedLinks != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.FailedItemIDs) != 1 || report.FailedItemIDs[0] != "BAD" {
		t.Fatalf("failed ids = %v", report.FailedItemIDs)
	}

	content, _ := store.ReadNote("a.md")
	if !strings.Contains(content, "file:///lib/images/GOOD.info/g.png") {
		t.Fatalf("good link not updated: %q", content)
	}
	if !strings.Contains(content, "file:///stale/BAD.png") {
		t.Fatalf("failed link must stay untouched: %q", content)
	}
}

func TestRunConnectionErrorAborts(t *testing.T) {
	resolver := &fakeResolver{errs: map[string]error{
		"X": &eagle.ConnectionError{URL: "http://localhost:41595", Err: errors.New("connection refused")},
	}}
	engine, store := newEngine(t, map[string]string{
		"a.md": "![eagle:X](file:///stale/X.png)\n",
	}, resolver)

	_, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	var connErr *eagle.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}

	content, _ := store.ReadNote("a.md")
	if !strings.Contains(content, "file:///stale/X.png") {
		t.Fatalf("notes must not change when Eagle is unreachable: %q", content)
	}
}

func TestRunSkipsDegradedURLs(t *testing.T) {
	// The resolver falls back to eagle://item ids for unknown items;
	// those never replace an existing file link.
	resolver := &fakeResolver{}
	engine, store := newEngine(t, map[string]string{
		"a.md": "![eagle:LOST](file:///stale/LOST.png)\n",
	}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UpdatedLinks != 0 {
		t.Fatalf("degraded url must not rewrite: %+v", report)
	}
	if len(report.FailedItemIDs) != 1 || report.FailedItemIDs[0] != "LOST" {
		t.Fatalf("degraded id must count as failed: %v", report.FailedItemIDs)
	}
	content, _ := store.ReadNote("a.md")
	if !strings.Contains(content, "file:///stale/LOST.png") {
		t.Fatalf("content = %q", content)
	}
}

func TestRunDryRun(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{
		"ID1": "file:///new/ID1.png",
	}}
	before := "![eagle:ID1](file:///old/ID1.png)\n"
	engine, store := newEngine(t, map[string]string{"a.md": before}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.UpdatedLinks != 1 || report.UpdatedFiles != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Diffs) != 1 {
		t.Fatalf("expected one diff, got %d", len(report.Diffs))
	}
	diff := report.Diffs[0]
	if !strings.Contains(diff, "a.md") ||
		!strings.Contains(diff, "-![eagle:ID1](file:///old/ID1.png)") ||
		!strings.Contains(diff, "+![eagle:ID1](file:///new/ID1.png)") {
		t.Fatalf("diff = %q", diff)
	}

	content, _ := store.ReadNote("a.md")
	if content != before {
		t.Fatalf("dry run must not write, content = %q", content)
	}
}

func TestRunConfirmDeclined(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{"ID1": "file:///new/ID1.png"}}
	before := "![eagle:ID1](file:///old/ID1.png)\n"
	engine, store := newEngine(t, map[string]string{"a.md": before}, resolver)

	asked := false
	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{
		Confirm: func(files, links int) (bool, error) {
			asked = true
			if files != 1 || links != 1 {
				t.Errorf("confirm got files=%d links=%d", files, links)
			}
			return false, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !asked {
		t.Fatalf("confirm was not consulted")
	}
	if report.UpdatedLinks != 0 || report.UpdatedFiles != 0 {
		t.Fatalf("declined run must report nothing updated: %+v", report)
	}

	content, _ := store.ReadNote("a.md")
	if content != before {
		t.Fatalf("declined run must not write, content = %q", content)
	}
}

func TestRunIgnoresFencedEmbeds(t *testing.T) {
	resolver := &fakeResolver{urls: map[string]string{"ID1": "file:///new/ID1.png"}}
	before := "```\n![eagle:ID1](file:///old/ID1.png)\n```\n"
	engine, store := newEngine(t, map[string]string{"a.md": before}, resolver)

	report, err := engine.Run(context.Background(), []string{"a.md"}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.CandidateLinks != 0 {
		t.Fatalf("fenced embed must not be a candidate: %+v", report)
	}
	content, _ := store.ReadNote("a.md")
	if content != before {
		t.Fatalf("content changed: %q", content)
	}
}

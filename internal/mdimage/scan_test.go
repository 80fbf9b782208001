package mdimage

import (
	"strings"
	"testing"
)

func TestScanBasicTokens(t *testing.T) {
	text := "intro\n![alt one](path/a.png) middle ![eagle:ID1](file:///x/y.png)\n"
	tokens := Scan(text)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Alt != "alt one" || tokens[0].Link != "path/a.png" {
		t.Fatalf("token 0 = %+v", tokens[0])
	}
	if tokens[1].Alt != "eagle:ID1" || tokens[1].Link != "file:///x/y.png" {
		t.Fatalf("token 1 = %+v", tokens[1])
	}
}

func TestScanSpansSliceBackToSource(t *testing.T) {
	text := "a ![x](l1) b ![y](l2 (nested)) c"
	for _, tok := range Scan(text) {
		span := text[tok.Start:tok.End]
		if !strings.HasPrefix(span, "![") || !strings.HasSuffix(span, ")") {
			t.Fatalf("span %q does not cover a full token", span)
		}
	}
}

func TestScanNestedParens(t *testing.T) {
	text := "![shot](/tmp/screen (1).png)"
	tokens := Scan(text)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Link != "/tmp/screen (1).png" {
		t.Fatalf("link = %q", tokens[0].Link)
	}
	if text[tokens[0].Start:tokens[0].End] != text {
		t.Fatalf("span should cover the whole input")
	}
}

func TestScanSkipsFencedCode(t *testing.T) {
	text := "![keep](a.png)\n```\n![skip](b.png)\n```\n![also](c.png)\n"
	tokens := Scan(text)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Link != "a.png" || tokens[1].Link != "c.png" {
		t.Fatalf("got links %q and %q", tokens[0].Link, tokens[1].Link)
	}
}

func TestScanTildeFenceNeedsMatchingClose(t *testing.T) {
	// A ``` fence does not close a ~~~ fence.
	text := "~~~\n```\n![inside](a.png)\n~~~\n![outside](b.png)\n"
	tokens := Scan(text)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Link != "b.png" {
		t.Fatalf("link = %q", tokens[0].Link)
	}
}

func TestScanUnterminatedFenceRunsToEnd(t *testing.T) {
	text := "![before](a.png)\n```\n![inside](b.png)\n"
	tokens := Scan(text)
	if len(tokens) != 1 || tokens[0].Link != "a.png" {
		t.Fatalf("expected only the pre-fence token, got %+v", tokens)
	}
}

func TestScanIgnoresNonTokens(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no paren", "![alt] text"},
		{"unclosed alt", "![alt never closes (x.png)"},
		{"unbalanced paren", "![alt](never closes"},
		{"plain link", "[not an image](x.png)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tokens := Scan(tc.text); len(tokens) != 0 {
				t.Fatalf("expected no tokens, got %+v", tokens)
			}
		})
	}
}

func TestScanWhitespaceBetweenAltAndLink(t *testing.T) {
	text := "![alt] (x.png)"
	tokens := Scan(text)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Link != "x.png" {
		t.Fatalf("link = %q", tokens[0].Link)
	}
}

func TestScanLinkTrimmed(t *testing.T) {
	tokens := Scan("![a](  spaced.png  )")
	if len(tokens) != 1 || tokens[0].Link != "spaced.png" {
		t.Fatalf("got %+v", tokens)
	}
}

func TestScanNoOverlappingSpans(t *testing.T) {
	text := strings.Repeat("![a](x.png) ![b](y.png)\n", 10)
	tokens := Scan(text)
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Start < tokens[i-1].End {
			t.Fatalf("spans overlap: %+v then %+v", tokens[i-1], tokens[i])
		}
	}
}

func TestScanEscapedBracketInAlt(t *testing.T) {
	tokens := Scan(`![alt \] more](x.png)`)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Alt != `alt \] more` {
		t.Fatalf("alt = %q", tokens[0].Alt)
	}
}

package search

import (
	"encoding/json"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestSnippetOf(t *testing.T) {
	if got := snippetOf("  short text  "); got != "short text" {
		t.Fatalf("short content must trim only, got %q", got)
	}

	long := strings.Repeat("é", 200)
	got := snippetOf(long)
	runes := []rune(got)
	if len(runes) != 161 || runes[160] != '…' {
		t.Fatalf("long content must clip at 160 runes plus ellipsis, got %d runes", len(runes))
	}
	if string(runes[:160]) != strings.Repeat("é", 160) {
		t.Fatal("clipping must respect rune boundaries")
	}
}

func TestHitToResultPrefersHighlight(t *testing.T) {
	raw := func(v any) json.RawMessage {
		data, _ := json.Marshal(v)
		return data
	}
	hit := meili.Hit{
		"id":       raw("doc_1"),
		"ownerId":  raw("alice"),
		"isPublic": raw(true),
		"title":    raw("Quarterly Notes"),
		"content":  raw("plain body text"),
		"_formatted": raw(map[string]string{
			"title":   "Quarterly <em>Notes</em>",
			"content": "plain <em>body</em> text",
		}),
	}

	result := hitToResult(hit)
	if result.ID != "doc_1" || result.OwnerID != "alice" || !result.IsPublic {
		t.Fatalf("identity fields mismatch: %+v", result)
	}
	if result.Title != "Quarterly <em>Notes</em>" {
		t.Fatalf("highlighted title must win, got %q", result.Title)
	}
	if result.Snippet != "plain <em>body</em> text" {
		t.Fatalf("highlighted snippet must win, got %q", result.Snippet)
	}
}

func TestHitToResultFallsBackToPlainFields(t *testing.T) {
	raw := func(v any) json.RawMessage {
		data, _ := json.Marshal(v)
		return data
	}
	hit := meili.Hit{
		"id":      raw("doc_2"),
		"ownerId": raw("bob"),
		"title":   raw("Plain"),
		"content": raw(strings.Repeat("word ", 100)),
	}

	result := hitToResult(hit)
	if result.Title != "Plain" {
		t.Fatalf("plain title expected, got %q", result.Title)
	}
	if !strings.HasSuffix(result.Snippet, "…") {
		t.Fatalf("long plain content must be clipped, got %q", result.Snippet)
	}
}

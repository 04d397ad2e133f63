package chunking

import (
	"strings"
	"testing"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

func TestSplitOverlapsWindows(t *testing.T) {
	s := NewSplitter(10, 2)
	windows := s.Split("one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty")
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d: %v", len(windows), windows)
	}
	if !strings.HasPrefix(windows[1], "nine ten eleven") {
		t.Fatalf("expected second window to overlap by two words, got %q", windows[1])
	}
	if windows[2] != "seventeen eighteen nineteen twenty" {
		t.Fatalf("unexpected tail window %q", windows[2])
	}
}

func TestSplitDisabledNormalizesWhitespace(t *testing.T) {
	s := NewSplitter(0, 0)
	windows := s.Split("  whole \n\t document  ")
	if len(windows) != 1 || windows[0] != "whole document" {
		t.Fatalf("expected a single normalized window, got %v", windows)
	}
	if got := s.Split(" \n "); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(8, 20)
	if s.Overlap != 2 {
		t.Fatalf("expected overlap clamped to 2, got %d", s.Overlap)
	}
	if NewSplitter(8, -1).Overlap != 0 {
		t.Fatalf("expected negative overlap reset to 0")
	}
}

func TestSplitPassagesSuffixesDocIDs(t *testing.T) {
	s := NewSplitter(10, 0)
	out := s.SplitPassages([]domain.Passage{
		{DocID: "short", Content: "tiny"},
		{DocID: "long", Title: "T", Content: words(15)},
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(out))
	}
	if out[0].DocID != "short" || out[1].DocID != "long#0" || out[2].DocID != "long#1" {
		t.Fatalf("unexpected docids: %+v", out)
	}
	if out[2].Title != "T" || len(strings.Fields(out[2].Content)) != 5 {
		t.Fatalf("unexpected tail passage %+v", out[2])
	}
}

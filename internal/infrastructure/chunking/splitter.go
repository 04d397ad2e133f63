// Package chunking segments long corpus documents into overlapping word
// windows before they are indexed for retrieval, so a retrieved context is a
// passage rather than a whole document.
package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

// Splitter cuts text into windows of Words words, each starting Words-Overlap
// words after the previous one. Words <= 0 disables segmentation.
type Splitter struct {
	Words   int
	Overlap int
}

func NewSplitter(words, overlap int) *Splitter {
	overlap = max(overlap, 0)
	if words > 0 && overlap >= words {
		overlap = words / 4
	}
	return &Splitter{Words: words, Overlap: overlap}
}

// Split normalizes whitespace; a text that fits one window comes back whole.
func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if s.Words <= 0 || len(words) <= s.Words {
		return []string{strings.Join(words, " ")}
	}

	stride := s.Words - s.Overlap
	var windows []string
	for start := 0; ; start += stride {
		end := min(start+s.Words, len(words))
		windows = append(windows, strings.Join(words[start:end], " "))
		if end == len(words) {
			return windows
		}
	}
}

// SplitPassages leaves passages that fit one window untouched and replaces
// the rest with windows whose docids carry a "#<n>" suffix.
func (s *Splitter) SplitPassages(passages []domain.Passage) []domain.Passage {
	out := make([]domain.Passage, 0, len(passages))
	for _, p := range passages {
		windows := s.Split(p.Content)
		if len(windows) <= 1 {
			out = append(out, p)
			continue
		}
		for i, w := range windows {
			out = append(out, domain.Passage{
				DocID:   fmt.Sprintf("%s#%d", p.DocID, i),
				Title:   p.Title,
				Content: w,
			})
		}
	}
	return out
}

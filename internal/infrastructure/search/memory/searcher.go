// Package memory ranks an in-process corpus with hashed sparse vectors. It
// serves small corpora and tests without a search server.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search/sparse"
)

type entry struct {
	passage domain.Passage
	vector  sparse.Vector
}

type Searcher struct {
	mu      sync.RWMutex
	entries []entry
	byDocID map[string]int
}

func New(passages []domain.Passage) *Searcher {
	s := &Searcher{byDocID: make(map[string]int)}
	_ = s.Index(context.Background(), passages)
	return s
}

// Index adds passages; a repeated docid replaces the earlier passage.
func (s *Searcher) Index(_ context.Context, passages []domain.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range passages {
		e := entry{passage: p, vector: sparse.EncodeDocument(p.Content, p.Title)}
		if idx, ok := s.byDocID[p.DocID]; ok && p.DocID != "" {
			s.entries[idx] = e
			continue
		}
		s.byDocID[p.DocID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *Searcher) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Searcher) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.SearchHit{}, nil
	}
	qv := sparse.EncodeQuery(query)
	if len(qv.Indices) == 0 {
		return []domain.SearchHit{}, nil
	}

	type scored struct {
		idx   int
		score float64
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]scored, 0, len(s.entries))
	for i, e := range s.entries {
		score := sparse.Dot(qv, e.vector)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, scored{idx: i, score: score})
	}
	// Ties keep corpus order.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]domain.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		p := s.entries[c.idx].passage
		hit := domain.SearchHit{DocID: p.DocID, Score: c.score, Content: p.Content}
		if p.Title != "" {
			hit.Metadata = map[string]any{"title": p.Title}
		}
		out = append(out, hit)
	}
	return out, nil
}

func (s *Searcher) BatchSearch(ctx context.Context, queries []string, k int, concurrency int) ([][]domain.SearchHit, error) {
	return search.Batch(ctx, s.Search, queries, k, concurrency)
}

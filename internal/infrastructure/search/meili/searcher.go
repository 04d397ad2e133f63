// Package meili retrieves passages from a Meilisearch index.
package meili

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search"
)

const DefaultContentKey = "contents"

type Options struct {
	Host       string
	APIKey     string
	Index      string
	ContentKey string
	// IDKey names the primary key field; "docid" when empty.
	IDKey string
}

type Searcher struct {
	index      meilisearch.IndexManager
	contentKey string
	idKey      string
}

func New(opts Options) *Searcher {
	client := meilisearch.New(opts.Host, meilisearch.WithAPIKey(opts.APIKey))
	return NewWithIndex(client.Index(opts.Index), opts)
}

func NewWithIndex(index meilisearch.IndexManager, opts Options) *Searcher {
	s := &Searcher{index: index, contentKey: opts.ContentKey, idKey: opts.IDKey}
	if s.contentKey == "" {
		s.contentKey = DefaultContentKey
	}
	if s.idKey == "" {
		s.idKey = "docid"
	}
	return s
}

func (s *Searcher) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.SearchHit{}, nil
	}
	result, err := s.index.Search(query, &meilisearch.SearchRequest{
		Query:            query,
		Limit:            int64(k),
		ShowRankingScore: true,
	})
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	out := make([]domain.SearchHit, 0, len(result.Hits))
	for rank, hit := range result.Hits {
		fields, err := decodeHit(hit)
		if err != nil {
			return nil, fmt.Errorf("decode hit %d: %w", rank, err)
		}
		content := stringField(fields, s.contentKey)
		if content == "" {
			content = stringField(fields, "text")
		}
		score, ok := fields["_rankingScore"].(float64)
		if !ok {
			score = 1 / float64(rank+1)
		}
		meta := make(map[string]any, len(fields))
		for key, v := range fields {
			if key != s.contentKey && key != s.idKey && key != "_rankingScore" {
				meta[key] = v
			}
		}
		out = append(out, domain.SearchHit{
			DocID:    stringField(fields, s.idKey),
			Score:    score,
			Content:  content,
			Metadata: meta,
		})
	}
	return out, nil
}

func (s *Searcher) BatchSearch(ctx context.Context, queries []string, k int, concurrency int) ([][]domain.SearchHit, error) {
	return search.Batch(ctx, s.Search, queries, k, concurrency)
}

// decodeHit normalises a hit of any concrete client type into plain values.
func decodeHit(hit any) (map[string]any, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

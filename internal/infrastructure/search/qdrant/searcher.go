// Package qdrant retrieves passages from a Qdrant collection, either with
// dense query embeddings or with hashed sparse vectors when no embedder is
// configured.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/ports"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/search/sparse"
)

const (
	DefaultContentKey   = "contents"
	DefaultSparseVector = "bm25"
)

type Options struct {
	BaseURL    string
	Collection string
	APIKey     string
	// ContentKey names the payload field holding passage text.
	ContentKey       string
	SparseVectorName string
	// Embedder switches the searcher to dense vectors when set.
	Embedder   ports.Embedder
	HTTPClient *http.Client
}

type Searcher struct {
	baseURL      string
	collection   string
	apiKey       string
	contentKey   string
	sparseVector string
	embedder     ports.Embedder
	httpClient   *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(opts Options) *Searcher {
	s := &Searcher{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		collection:   opts.Collection,
		apiKey:       opts.APIKey,
		contentKey:   opts.ContentKey,
		sparseVector: opts.SparseVectorName,
		embedder:     opts.Embedder,
		httpClient:   opts.HTTPClient,
	}
	if s.contentKey == "" {
		s.contentKey = DefaultContentKey
	}
	if s.sparseVector == "" {
		s.sparseVector = DefaultSparseVector
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return s
}

func (s *Searcher) Search(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return []domain.SearchHit{}, nil
	}
	reqBody := map[string]any{
		"limit":        k,
		"with_payload": true,
	}
	if s.embedder != nil {
		vector, err := s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		reqBody["query"] = vector
	} else {
		vector := sparse.EncodeQuery(query)
		if len(vector.Indices) == 0 {
			return []domain.SearchHit{}, nil
		}
		reqBody["query"] = vector
		reqBody["using"] = s.sparseVector
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", s.collection)
	if err := s.do(ctx, http.MethodPost, path, reqBody, &queryResp, "query"); err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		docID := getStringPayload(p.Payload, "docid")
		if docID == "" {
			docID = fmt.Sprintf("%v", p.ID)
		}
		content := getStringPayload(p.Payload, s.contentKey)
		if content == "" {
			content = getStringPayload(p.Payload, "text")
		}
		meta := make(map[string]any, len(p.Payload))
		for key, v := range p.Payload {
			if key != s.contentKey && key != "docid" {
				meta[key] = v
			}
		}
		out = append(out, domain.SearchHit{
			DocID:    docID,
			Score:    p.Score,
			Content:  content,
			Metadata: meta,
		})
	}
	return out, nil
}

func (s *Searcher) BatchSearch(ctx context.Context, queries []string, k int, concurrency int) ([][]domain.SearchHit, error) {
	return search.Batch(ctx, s.Search, queries, k, concurrency)
}

// Index upserts passages. Point ids are derived from docids so re-indexing
// a corpus overwrites instead of duplicating.
func (s *Searcher) Index(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  any            `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(passages))
	vectorSize := 0
	for _, p := range passages {
		var vector any
		if s.embedder != nil {
			dense, err := s.embedder.EmbedQuery(ctx, p.Content)
			if err != nil {
				return fmt.Errorf("embed passage %s: %w", p.DocID, err)
			}
			vectorSize = len(dense)
			vector = dense
		} else {
			vector = map[string]sparse.Vector{s.sparseVector: sparse.EncodeDocument(p.Content, p.Title)}
		}
		points = append(points, point{
			ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.DocID)).String(),
			Vector: vector,
			Payload: map[string]any{
				"docid":      p.DocID,
				"title":      p.Title,
				s.contentKey: p.Content,
			},
		})
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	return s.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
}

// ensureCollection creates the collection once per vector size. A zero size
// means a sparse-only collection.
func (s *Searcher) ensureCollection(ctx context.Context, vectorSize int) error {
	s.ensureMu.Lock()
	if s.ensuredCollection && s.ensuredVectorSize == vectorSize {
		s.ensureMu.Unlock()
		return nil
	}
	s.ensureMu.Unlock()

	reqBody := map[string]any{}
	if vectorSize > 0 {
		reqBody["vectors"] = map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		}
	} else {
		reqBody["sparse_vectors"] = map[string]any{
			s.sparseVector: map[string]any{},
		}
	}

	err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, reqBody, nil, "ensure collection")
	var statusErr *statusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.code == http.StatusConflict) {
		return err
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	s.ensuredCollection = true
	s.ensuredVectorSize = vectorSize
	return nil
}

type statusError struct {
	operation string
	code      int
	status    string
	body      string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

func (s *Searcher) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{operation: operation, code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

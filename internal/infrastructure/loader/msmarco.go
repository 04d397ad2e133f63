package loader

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

// LoadQrels reads TREC qrels (qid iter docid rel) and falls back to the
// three-column MS MARCO layout (qid docid rel).
func (l *Loader) LoadQrels(path string) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int)
	skipped := 0
	err := eachLine(path, func(_ int, line string) {
		parts := strings.Fields(line)
		var qid, docid, rel string
		switch {
		case len(parts) >= 4:
			qid, docid, rel = parts[0], parts[2], parts[3]
		case len(parts) == 3:
			qid, docid, rel = parts[0], parts[1], parts[2]
		default:
			skipped++
			return
		}
		score, err := strconv.Atoi(rel)
		if err != nil {
			skipped++
			return
		}
		if out[qid] == nil {
			out[qid] = make(map[string]int)
		}
		out[qid][docid] = score
	})
	if err != nil {
		return nil, err
	}
	l.warnSkipped(path, skipped)
	if len(out) == 0 {
		return nil, fmt.Errorf("load qrels %s: %w", path, ErrNoRecords)
	}
	return out, nil
}

// MSMarcoSource builds the few-shot pool from an MS MARCO style training
// split: queries TSV, collection TSV and qrels. The pool is read once.
type MSMarcoSource struct {
	loader         *Loader
	QueriesPath    string
	CollectionPath string
	QrelsPath      string

	once     sync.Once
	examples []domain.FewShotExample
	err      error
}

func NewMSMarcoSource(loader *Loader, queriesPath, collectionPath, qrelsPath string) *MSMarcoSource {
	return &MSMarcoSource{
		loader:         loader,
		QueriesPath:    queriesPath,
		CollectionPath: collectionPath,
		QrelsPath:      qrelsPath,
	}
}

// Examples pairs each training query with its relevant passages, in query
// file order and then docid order.
func (s *MSMarcoSource) Examples(ctx context.Context) ([]domain.FewShotExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.once.Do(func() {
		s.examples, s.err = s.load()
	})
	if s.err != nil {
		return nil, domain.WrapError(domain.ErrMissingExamples, "load msmarco examples", s.err)
	}
	return s.examples, nil
}

func (s *MSMarcoSource) load() ([]domain.FewShotExample, error) {
	queries, err := s.loader.LoadQueries(s.QueriesPath, FormatTSV)
	if err != nil {
		return nil, err
	}
	qrels, err := s.loader.LoadQrels(s.QrelsPath)
	if err != nil {
		return nil, err
	}
	passages, err := s.loader.LoadCorpus(s.CollectionPath)
	if err != nil {
		return nil, err
	}
	collection := make(map[string]string, len(passages))
	for _, p := range passages {
		collection[p.DocID] = p.Content
	}

	var out []domain.FewShotExample
	for _, q := range queries {
		judged := qrels[q.QID]
		docids := make([]string, 0, len(judged))
		for docid, rel := range judged {
			if rel > 0 {
				docids = append(docids, docid)
			}
		}
		sort.Strings(docids)
		for _, docid := range docids {
			passage, ok := collection[docid]
			if !ok {
				continue
			}
			out = append(out, domain.FewShotExample{Query: q.Text, Passage: passage})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no judged query/passage pairs: %w", ErrNoRecords)
	}
	return out, nil
}

package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

// LoadCorpus reads passages from JSONL (docid/id/_id with contents/text and an
// optional title) or from TSV (docid\ttext[\ttitle]).
func (l *Loader) LoadCorpus(path string) ([]domain.Passage, error) {
	jsonl := DetectFormat(path) == FormatJSONL
	var out []domain.Passage
	skipped := 0
	err := eachLine(path, func(lineNo int, line string) {
		var (
			p  domain.Passage
			ok bool
		)
		if jsonl {
			p, ok = l.jsonPassage(path, lineNo, line)
		} else {
			p, ok = tsvPassage(line)
		}
		if !ok {
			skipped++
			return
		}
		out = append(out, p)
	})
	if err != nil {
		return nil, err
	}
	l.warnSkipped(path, skipped)
	if len(out) == 0 {
		return nil, fmt.Errorf("load corpus %s: %w", path, ErrNoRecords)
	}
	return out, nil
}

func (l *Loader) jsonPassage(path string, lineNo int, line string) (domain.Passage, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		l.logger.Warn("loader_invalid_json", "path", path, "line", lineNo, "error", err)
		return domain.Passage{}, false
	}
	p := domain.Passage{
		DocID:   firstString(obj, "docid", "id", "_id", "doc_id"),
		Title:   firstString(obj, "title"),
		Content: firstString(obj, "contents", "text", "content"),
	}
	return p, p.DocID != "" && p.Content != ""
}

func tsvPassage(line string) (domain.Passage, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return domain.Passage{}, false
	}
	p := domain.Passage{
		DocID:   strings.TrimSpace(parts[0]),
		Content: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		p.Title = strings.TrimSpace(parts[2])
	}
	return p, p.DocID != "" && p.Content != ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

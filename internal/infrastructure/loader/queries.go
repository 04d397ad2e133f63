// Package loader reads query sets, pre-retrieved contexts, corpora and
// few-shot pools from local files and writes run outputs as TSV.
package loader

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
)

const (
	FormatTSV   = "tsv"
	FormatJSONL = "jsonl"
	FormatXLSX  = "xlsx"
)

var ErrNoRecords = errors.New("no valid records")

type Loader struct {
	logger *slog.Logger
	// QIDKey and QueryKey name the JSONL fields holding the query id and text.
	QIDKey   string
	QueryKey string
}

func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, QIDKey: "qid", QueryKey: "query"}
}

// DetectFormat maps a file extension to a query file format. Unknown
// extensions read as TSV.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return FormatJSONL
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatTSV
	}
}

// LoadQueries reads queries in the given format, detecting it from the
// extension when format is empty. Malformed rows and empty queries are
// skipped; a file without any valid query is an error.
func (l *Loader) LoadQueries(path string, format string) ([]domain.QueryItem, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	var (
		items []domain.QueryItem
		err   error
	)
	switch format {
	case FormatTSV:
		items, err = l.loadQueriesTSV(path)
	case FormatJSONL:
		items, err = l.loadQueriesJSONL(path)
	case FormatXLSX:
		items, err = l.loadQueriesXLSX(path)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "load queries", fmt.Errorf("unsupported format %q", format))
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("load queries %s: %w", path, ErrNoRecords)
	}
	return items, nil
}

func (l *Loader) loadQueriesTSV(path string) ([]domain.QueryItem, error) {
	var items []domain.QueryItem
	skipped := 0
	err := eachLine(path, func(lineNo int, line string) {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			skipped++
			return
		}
		item, ok := queryItem(parts[0], parts[1])
		if !ok {
			skipped++
			return
		}
		items = append(items, item)
	})
	if err != nil {
		return nil, err
	}
	l.warnSkipped(path, skipped)
	return items, nil
}

func (l *Loader) loadQueriesJSONL(path string) ([]domain.QueryItem, error) {
	var items []domain.QueryItem
	skipped := 0
	err := eachLine(path, func(lineNo int, line string) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			l.logger.Warn("loader_invalid_json", "path", path, "line", lineNo, "error", err)
			skipped++
			return
		}
		qid, okID := obj[l.QIDKey]
		text, okText := obj[l.QueryKey]
		if !okID || !okText {
			skipped++
			return
		}
		item, ok := queryItem(cast.ToString(qid), cast.ToString(text))
		if !ok {
			skipped++
			return
		}
		items = append(items, item)
	})
	if err != nil {
		return nil, err
	}
	l.warnSkipped(path, skipped)
	return items, nil
}

// loadQueriesXLSX reads the first sheet: qid in column A, query in column B.
// A first row reading "qid" is treated as a header.
func (l *Loader) loadQueriesXLSX(path string) ([]domain.QueryItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("load queries %s: %w", path, ErrNoRecords)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	var items []domain.QueryItem
	skipped := 0
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "qid") {
			continue
		}
		if len(row) < 2 {
			skipped++
			continue
		}
		item, ok := queryItem(row[0], row[1])
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	l.warnSkipped(path, skipped)
	return items, nil
}

// LoadContexts reads {"qid": ..., "contexts": [...]} lines.
func (l *Loader) LoadContexts(path string) (map[string][]string, error) {
	out := make(map[string][]string)
	skipped := 0
	err := eachLine(path, func(lineNo int, line string) {
		var obj struct {
			QID      any   `json:"qid"`
			Contexts []any `json:"contexts"`
		}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			l.logger.Warn("loader_invalid_json", "path", path, "line", lineNo, "error", err)
			skipped++
			return
		}
		qid := strings.TrimSpace(cast.ToString(obj.QID))
		if qid == "" || obj.Contexts == nil {
			skipped++
			return
		}
		contexts := make([]string, 0, len(obj.Contexts))
		for _, c := range obj.Contexts {
			contexts = append(contexts, cast.ToString(c))
		}
		out[qid] = contexts
	})
	if err != nil {
		return nil, err
	}
	l.warnSkipped(path, skipped)
	if len(out) == 0 {
		return nil, fmt.Errorf("load contexts %s: %w", path, ErrNoRecords)
	}
	return out, nil
}

func (l *Loader) warnSkipped(path string, skipped int) {
	if skipped > 0 {
		l.logger.Warn("loader_rows_skipped", "path", path, "skipped", skipped)
	}
}

func queryItem(qid, text string) (domain.QueryItem, bool) {
	qid = strings.TrimSpace(qid)
	text = strings.TrimSpace(text)
	if qid == "" || text == "" {
		return domain.QueryItem{}, false
	}
	return domain.QueryItem{QID: qid, Text: text}, true
}

// eachLine calls fn for every non-blank line with a 1-based line number.
func eachLine(path string, fn func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return scanLines(f, fn)
}

func scanLines(r io.Reader, fn func(lineNo int, line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fn(lineNo, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan lines: %w", err)
	}
	return nil
}

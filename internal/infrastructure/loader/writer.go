package loader

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/core/textparse"
)

const (
	OutputConcat = "concat"
	OutputPlain  = "plain"
)

// WriteConcat writes one "qid\treformulated" line per result.
func WriteConcat(w io.Writer, results []domain.ReformulationResult) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if err := writeRow(bw, r.QID, flatten(r.Reformulated)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteQueries exports queries as headerless "qid\tquery" TSV.
func WriteQueries(w io.Writer, queries []domain.QueryItem) error {
	bw := bufio.NewWriter(w)
	for _, q := range queries {
		if err := writeRow(bw, flatten(q.QID), flatten(q.Text)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// plainLayout describes which generated artifacts a method's plain output
// lists and how its columns are named.
type plainLayout struct {
	metaKey string
	column  string
	// multi spreads list values over numbered columns instead of joining them.
	multi bool
}

var plainLayouts = map[string]plainLayout{
	"genqr":          {metaKey: "keywords", column: "keyword", multi: true},
	"genqr_ensemble": {metaKey: "keywords", column: "keyword", multi: true},
	"query2e":        {metaKey: "keywords", column: "entity", multi: true},
	"lamer":          {metaKey: "passages", column: "passage", multi: true},
	"query2doc":      {metaKey: "pseudo_doc", column: "passage"},
	"mugi":           {metaKey: "pseudo_docs", column: "pseudo_document"},
	"qa_expand":      {metaKey: "refined_answers", column: "refined_query"},
}

// WritePlain writes a header row and the generated content of every result
// without the repeated original query.
func WritePlain(w io.Writer, method string, results []domain.ReformulationResult) error {
	layout, ok := plainLayouts[method]
	bw := bufio.NewWriter(w)

	if ok && layout.multi {
		width := 0
		for _, r := range results {
			width = max(width, len(metaStrings(r, layout.metaKey)))
		}
		width = max(width, 1)
		header := []string{"qid"}
		for i := 1; i <= width; i++ {
			header = append(header, fmt.Sprintf("%s_%d", layout.column, i))
		}
		if err := writeRow(bw, header...); err != nil {
			return err
		}
		for _, r := range results {
			row := []string{r.QID}
			for _, v := range metaStrings(r, layout.metaKey) {
				row = append(row, CleanField(v))
			}
			if err := writeRow(bw, row...); err != nil {
				return err
			}
		}
		return bw.Flush()
	}

	column := "generated_content"
	if ok {
		column = layout.column
	}
	if err := writeRow(bw, "qid", column); err != nil {
		return err
	}
	for _, r := range results {
		var content string
		if ok {
			content = strings.Join(metaStrings(r, layout.metaKey), " ")
		} else {
			content = strings.ReplaceAll(r.Reformulated, r.Original, "")
		}
		if err := writeRow(bw, r.QID, CleanField(content)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// CleanField flattens a value into a single TSV-safe cell.
func CleanField(s string) string {
	return textparse.CleanText(strings.ReplaceAll(s, `\`, " "))
}

func metaStrings(r domain.ReformulationResult, key string) []string {
	if r.Metadata == nil {
		return nil
	}
	v, ok := r.Metadata.Get(key)
	if !ok || v == nil {
		return nil
	}
	if s, isString := v.(string); isString {
		return []string{s}
	}
	return cast.ToStringSlice(v)
}

var lineBreaks = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// flatten keeps a value on one TSV line without touching its inner spacing.
func flatten(s string) string {
	return lineBreaks.Replace(s)
}

func writeRow(w *bufio.Writer, cells ...string) error {
	if _, err := w.WriteString(strings.Join(cells, "\t") + "\n"); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

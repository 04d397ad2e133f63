// Package sparse builds hashed BM25-style sparse vectors. The same encoder
// feeds Qdrant sparse search and the in-process memory searcher.
package sparse

import (
	"cmp"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"unicode"
)

// Vector is sorted by index; indices are FNV-1a hashes of lowercased tokens.
type Vector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	bm25K1     = 1.2
	titleBoost = 1.5
	// maxTerms caps a document vector; the highest-weighted terms are kept.
	maxTerms = 256
)

// stopwords are dropped so repeated query text in expanded queries does not
// inflate function-word weights.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// EncodeDocument weights title tokens above body tokens.
func EncodeDocument(text string, title string) Vector {
	tf := make(map[uint32]float64, 64)
	addTokens(tf, tokenize(text), 1.0)
	addTokens(tf, tokenize(title), titleBoost)
	return toVector(tf)
}

func EncodeQuery(query string) Vector {
	tf := make(map[uint32]float64, 32)
	addTokens(tf, tokenize(query), 1.0)
	return toVector(tf)
}

// Dot is the inner product of two index-sorted vectors.
func Dot(a, b Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			sum += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

func addTokens(tf map[uint32]float64, tokens []string, weight float64) {
	for _, token := range tokens {
		if _, stop := stopwords[token]; stop {
			continue
		}
		tf[hashToken(token)] += weight
	}
}

type term struct {
	index  uint32
	weight float64
}

func toVector(tf map[uint32]float64) Vector {
	if len(tf) == 0 {
		return Vector{}
	}
	terms := make([]term, 0, len(tf))
	for idx, freq := range tf {
		w := freq * (bm25K1 + 1) / (freq + bm25K1)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		terms = append(terms, term{index: idx, weight: w})
	}
	if len(terms) > maxTerms {
		slices.SortFunc(terms, func(a, b term) int {
			if c := cmp.Compare(b.weight, a.weight); c != 0 {
				return c
			}
			return cmp.Compare(a.index, b.index)
		})
		terms = terms[:maxTerms]
	}
	slices.SortFunc(terms, func(a, b term) int { return cmp.Compare(a.index, b.index) })

	v := Vector{
		Indices: make([]uint32, len(terms)),
		Values:  make([]float32, len(terms)),
	}
	for i, t := range terms {
		v.Indices[i] = t.index
		v.Values[i] = float32(t.weight)
	}
	return v
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// tokenize splits on anything that is not a letter or digit and lowercases.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

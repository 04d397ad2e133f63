package domain

type SearchHit struct {
	DocID    string         `json:"docid"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Contents returns hit contents in rank order.
func Contents(hits []SearchHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Content)
	}
	return out
}

// FewShotExample is a (query, relevant passage) pair shown to the model.
type FewShotExample struct {
	Query   string `json:"query"`
	Passage string `json:"passage"`
}

// Passage is one corpus entry that can be indexed into a search backend.
type Passage struct {
	DocID   string `json:"docid"`
	Title   string `json:"title,omitempty"`
	Content string `json:"contents"`
}

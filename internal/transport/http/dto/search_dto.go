package dto

type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type SearchMatch struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Text    string  `json:"text"`
}

type SearchResponse struct {
	Location TipAttributes `json:"location"`
	Matches  []SearchMatch `json:"matches"`
}

package model

// VectorMetadata is stored next to every published embedding.
type VectorMetadata struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Text    string `json:"text"`
}

// VectorFilter narrows a similarity query; empty fields are not applied.
type VectorFilter struct {
	City    string
	Country string
}

func (f VectorFilter) IsEmpty() bool {
	return f.City == "" && f.Country == ""
}

type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

package dto

type IngestRequest struct {
	TipText *string `json:"tip_text"`
}

type TipAttributes struct {
	City       string   `json:"city"`
	Country    string   `json:"country"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type IngestResponse struct {
	Status     string         `json:"status"`
	ID         string         `json:"id"`
	Reason     *string        `json:"reason,omitempty"`
	Attributes *TipAttributes `json:"attributes,omitempty"`
}

type UpstreamErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

package dto

import (
	"encoding/json"
	"time"
)

type PendingTip struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	City       *string         `json:"city"`
	Country    *string         `json:"country"`
	Confidence *float64        `json:"confidence"`
	Reason     *string         `json:"reason"`
	Moderation json.RawMessage `json:"moderation,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ReviewQueueResponse struct {
	Items []PendingTip `json:"items"`
	Count int          `json:"count"`
}

type ApproveRequest struct {
	City    *string `json:"city"`
	Country *string `json:"country"`
}

type ApproveResponse struct {
	ID      string  `json:"id"`
	City    *string `json:"city"`
	Country *string `json:"country"`
}

type RejectResponse struct {
	ID string `json:"id"`
}

type TipStateResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type TipEvent struct {
	Action     string         `json:"action"`
	Props      map[string]any `json:"props"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type TipEventsResponse struct {
	ID     string     `json:"id"`
	Events []TipEvent `json:"events"`
}

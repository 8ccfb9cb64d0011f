package model

import (
	"encoding/json"
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
)

type Tip struct {
	ID               string              `json:"id"`
	Text             string              `json:"text"`
	City             *string             `json:"city"`
	Country          *string             `json:"country"`
	Confidence       *float64            `json:"confidence"`
	ModerationResult json.RawMessage     `json:"moderation,omitempty"`
	Reason           *enums.ReviewReason `json:"reason"`
	CreatedAt        time.Time           `json:"created_at"`
}

type ApprovedTip struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	City       *string   `json:"city"`
	Country    *string   `json:"country"`
	Confidence *float64  `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

package model

import (
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
)

type TipEvent struct {
	TipID      string
	Action     enums.TipEventAction
	Props      map[string]any
	OccurredAt time.Time
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	InsertBatch(ctx context.Context, events []model.TipEvent) error
	ListByTip(ctx context.Context, tipID string) ([]model.TipEvent, error)
}

// Service keeps the per-tip audit trail of pipeline outcomes and admin decisions.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

func (s *Service) Record(ctx context.Context, tipID string, action enums.TipEventAction, props map[string]any) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("audit store is nil")
	}
	tipID = strings.TrimSpace(tipID)
	if tipID == "" || strings.TrimSpace(string(action)) == "" {
		return ErrValidation
	}

	event := model.TipEvent{
		TipID:      tipID,
		Action:     action,
		Props:      cloneProps(props),
		OccurredAt: s.now().UTC(),
	}
	if err := s.store.InsertBatch(ctx, []model.TipEvent{event}); err != nil {
		return fmt.Errorf("insert tip event: %w", err)
	}
	return nil
}

func (s *Service) History(ctx context.Context, tipID string) ([]model.TipEvent, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("audit store is nil")
	}
	tipID = strings.TrimSpace(tipID)
	if tipID == "" {
		return nil, ErrValidation
	}

	events, err := s.store.ListByTip(ctx, tipID)
	if err != nil {
		return nil, fmt.Errorf("list tip events: %w", err)
	}
	if events == nil {
		events = []model.TipEvent{}
	}
	return events, nil
}

func cloneProps(props map[string]any) map[string]any {
	if len(props) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(props))
	for key, value := range props {
		if value == nil {
			continue
		}
		out[key] = value
	}
	return out
}

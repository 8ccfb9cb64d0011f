// Package screening holds the safety-screening contract and the threshold policy applied to its verdicts.
package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/antonholmquist/jason"
)

var ErrMalformedModeration = errors.New("malformed moderation payload")

// Result is a classifier verdict. Raw keeps the classifier payload verbatim for the review queue.
type Result struct {
	Flagged        bool
	CategoryScores map[string]float64
	Raw            json.RawMessage
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Policy flags a result when the classifier flagged it or a watched category reaches its threshold.
type Policy struct {
	thresholds map[string]float64
}

func NewPolicy(thresholds map[string]float64) Policy {
	cloned := make(map[string]float64, len(thresholds))
	for category, threshold := range thresholds {
		cloned[strings.ToLower(strings.TrimSpace(category))] = threshold
	}
	return Policy{thresholds: cloned}
}

func (p Policy) Flags(result Result) bool {
	return result.Flagged || len(p.TriggeredCategories(result)) > 0
}

// TriggeredCategories lists watched categories whose score is at or above the threshold, sorted by name.
func (p Policy) TriggeredCategories(result Result) []string {
	var triggered []string
	for category, threshold := range p.thresholds {
		score, ok := result.CategoryScores[category]
		if !ok {
			continue
		}
		if score >= threshold {
			triggered = append(triggered, category)
		}
	}
	sort.Strings(triggered)
	return triggered
}

// DecodeModeration reads one moderation result object: {"flagged": bool, "category_scores": {name: number}}.
// A payload without a boolean "flagged" cannot be defaulted safely and is rejected.
func DecodeModeration(raw []byte) (Result, error) {
	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedModeration, err)
	}

	flagged, err := obj.GetBoolean("flagged")
	if err != nil {
		return Result{}, fmt.Errorf("%w: flagged: %v", ErrMalformedModeration, err)
	}

	scores := map[string]float64{}
	if scoreObj, err := obj.GetObject("category_scores"); err == nil {
		for name, value := range scoreObj.Map() {
			score, err := value.Float64()
			if err != nil {
				continue
			}
			scores[strings.ToLower(name)] = score
		}
	}

	return Result{
		Flagged:        flagged,
		CategoryScores: scores,
		Raw:            append(json.RawMessage(nil), raw...),
	}, nil
}

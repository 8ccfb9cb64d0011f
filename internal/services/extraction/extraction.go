// Package extraction derives a location attribute set from tip text and decodes
// the extractor's untrusted output into it.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/nicklasc86/travelbot/internal/domain/model"
)

var ErrMalformedExtraction = errors.New("malformed extraction output")

type Extractor interface {
	Extract(ctx context.Context, text string) (model.Location, error)
}

// Default is the zero-confidence location used whenever the extractor output cannot be read.
func Default() model.Location {
	return model.Location{
		City:       model.UnknownLocation,
		Country:    model.UnknownLocation,
		Confidence: 0,
	}
}

// Decode never fails: malformed output degrades to Default, which routes the tip to review.
func Decode(raw string) model.Location {
	loc, err := DecodeStrict(raw)
	if err != nil {
		return Default()
	}
	return loc
}

// DecodeStrict parses {"city", "country", "confidence"}. Missing or blank names become
// UnknownLocation, a missing confidence becomes 0 and confidence is clamped to [0,1].
// Only a payload that is not a JSON object yields ErrMalformedExtraction.
func DecodeStrict(raw string) (model.Location, error) {
	obj, err := jason.NewObjectFromBytes([]byte(stripCodeFence(raw)))
	if err != nil {
		return model.Location{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	return model.Location{
		City:       stringOrUnknown(obj, "city"),
		Country:    stringOrUnknown(obj, "country"),
		Confidence: confidence(obj),
	}, nil
}

func stringOrUnknown(obj *jason.Object, key string) string {
	v, err := obj.GetString(key)
	if err != nil {
		return model.UnknownLocation
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return model.UnknownLocation
	}
	return v
}

func confidence(obj *jason.Object) float64 {
	v, err := obj.GetFloat64("confidence")
	if err != nil {
		s, strErr := obj.GetString("confidence")
		if strErr != nil {
			return 0
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}

	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// stripCodeFence removes a ```json ... ``` wrapper some chat models put around JSON content.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

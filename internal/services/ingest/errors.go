package ingest

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("tip text is required")

type Stage string

const (
	StageScreen  Stage = "screen"
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
	StageStore   Stage = "store"
)

// UpstreamError is a failed ingestion. Nothing is queued or published for the tip.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ingest %s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

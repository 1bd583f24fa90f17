// Package pipeline - End-to-end detection pipeline: letterbox, tensor
// building, two-stage inference, and decoding back to image space.
package pipeline

import "fmt"

// ShapeError reports a pixel buffer whose dimensions do not match the
// configured model input size. It is fatal to the single run, not to a
// surrounding frame loop.
type ShapeError struct {
	WantWidth, WantHeight int
	GotWidth, GotHeight   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("pipeline: buffer is %dx%d, model input requires %dx%d",
		e.GotWidth, e.GotHeight, e.WantWidth, e.WantHeight)
}

// LabelIndexError reports a class index outside the configured label table.
// The decoder drops the offending detection and continues; this error is
// logged, never returned from a pipeline run.
type LabelIndexError struct {
	Index  int
	Labels int
}

func (e *LabelIndexError) Error() string {
	return fmt.Sprintf("pipeline: class index %d outside label table of %d entries", e.Index, e.Labels)
}

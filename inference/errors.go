package inference

import "fmt"

// ModelLoadError reports that the pipeline was invoked before a model
// handle finished loading. This is a caller bug that construction order
// should prevent, but the orchestrator fails loudly rather than silently
// producing garbage detections.
type ModelLoadError struct {
	// Stage names the missing handle, e.g. "detector" or "nms".
	Stage string
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("inference: %s model not initialized", e.Stage)
}

// InferenceError wraps a backend execution failure. It is not retryable
// within a single frame; the caller reports it and skips the frame.
type InferenceError struct {
	// Stage names the pass that failed, e.g. "detector" or "nms".
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %s pass failed: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

package pipeline

import (
	"github.com/pkg/errors"

	"github.com/edge-vision/go-detect/inference"
)

// Config is the immutable configuration of one pipeline instance. Changing
// any field requires constructing a new pipeline; there is no hot-reload
// contract.
type Config struct {
	// ModelInputSize is the detector's fixed square input resolution,
	// e.g. 640.
	ModelInputSize int `json:"model_input_size" yaml:"model_input_size"`
	// TopK caps the number of detections retained per run.
	TopK int `json:"topk" yaml:"topk"`
	// IoUThreshold is the overlap above which suppression discards a box.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ScoreThreshold is the confidence floor for detections.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// ClassLabels maps class indices to human-readable labels, in model
	// output order.
	ClassLabels []string `json:"class_labels" yaml:"class_labels"`
}

// Validate checks the configuration for internally consistent values.
func (c Config) Validate() error {
	if c.ModelInputSize <= 0 {
		return errors.Errorf("model input size must be positive, got %d", c.ModelInputSize)
	}
	if c.TopK <= 0 {
		return errors.Errorf("topk must be positive, got %d", c.TopK)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou threshold must be in [0,1], got %f", c.IoUThreshold)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errors.Errorf("score threshold must be in [0,1], got %f", c.ScoreThreshold)
	}
	if len(c.ClassLabels) == 0 {
		return errors.New("class labels must not be empty")
	}
	return nil
}

// filterConfig projects the suppression-relevant fields.
func (c Config) filterConfig() inference.FilterConfig {
	return inference.FilterConfig{
		TopK:           c.TopK,
		IoUThreshold:   c.IoUThreshold,
		ScoreThreshold: c.ScoreThreshold,
	}
}

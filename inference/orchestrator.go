package inference

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	gtensor "gorgonia.org/tensor"
)

// Orchestrator chains the detector pass and the suppression pass.
//
// It feeds the input tensor to the detector, normalizes the raw output to
// row-major [numBoxes, 4+numClasses], and hands the rows to the box filter.
// Model handles are shared, read-only resources; the orchestrator never
// mutates them and is safe for concurrent use.
type Orchestrator struct {
	detector   Model
	filter     BoxFilter
	numClasses int
	inputName  string
	outputName string
	log        *zap.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTensorNames overrides the detector's input and output tensor names.
// The defaults are "images" and "output0".
func WithTensorNames(input, output string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.inputName = input
		o.outputName = output
	}
}

// WithOrchestratorLogger attaches a logger. The default is a nop logger.
func WithOrchestratorLogger(log *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// NewOrchestrator wires a detector handle and a box filter together.
//
// Arguments:
//   - detector: The loaded detector model handle.
//   - filter: The suppression stage, either model-backed or in-process.
//   - numClasses: The number of classes the detector was trained on; used
//     to recognize the attribute axis of the raw output.
//
// Returns:
//   - *Orchestrator: The ready orchestrator.
//   - error: An error if numClasses is invalid.
func NewOrchestrator(detector Model, filter BoxFilter, numClasses int, opts ...OrchestratorOption) (*Orchestrator, error) {
	if numClasses <= 0 {
		return nil, errors.Errorf("invalid class count %d", numClasses)
	}
	o := &Orchestrator{
		detector:   detector,
		filter:     filter,
		numClasses: numClasses,
		inputName:  "images",
		outputName: "output0",
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the two-stage protocol on a prepared input tensor.
//
// Arguments:
//   - ctx: Observed between stages; an in-flight backend call is not
//     aborted.
//   - input: The normalized [1, 3, S, S] input tensor.
//   - cfg: The suppression thresholds.
//
// Returns:
//   - Tensor: The raw detector rows, normalized to [numBoxes, 4+numClasses].
//   - []Selection: The kept rows, ordered by descending score.
//   - error: ModelLoadError if a handle is missing, InferenceError wrapping
//     any backend failure. No partial results accompany an error.
func (o *Orchestrator) Run(ctx context.Context, input Tensor, cfg FilterConfig) (Tensor, []Selection, error) {
	if o.detector == nil {
		return Tensor{}, nil, &ModelLoadError{Stage: "detector"}
	}
	if o.filter == nil {
		return Tensor{}, nil, &ModelLoadError{Stage: "nms"}
	}

	outputs, err := o.detector.Run(ctx, map[string]Tensor{o.inputName: input})
	if err != nil {
		return Tensor{}, nil, o.stageError("detector", err)
	}
	raw, ok := outputs[o.outputName]
	if !ok {
		return Tensor{}, nil, &InferenceError{
			Stage: "detector",
			Err:   errors.Errorf("model returned no %q output", o.outputName),
		}
	}

	rows, err := o.normalizeRows(raw)
	if err != nil {
		return Tensor{}, nil, &InferenceError{Stage: "detector", Err: err}
	}

	selections, err := o.filter.Filter(ctx, rows, cfg)
	if err != nil {
		return Tensor{}, nil, o.stageError("nms", err)
	}

	o.log.Debug("inference complete",
		zap.Int("candidates", rows.Rows()),
		zap.Int("selected", len(selections)))

	return rows, selections, nil
}

// stageError preserves ModelLoadError and context cancellation as-is and
// wraps everything else as an InferenceError for the given stage.
func (o *Orchestrator) stageError(stage string, err error) error {
	var loadErr *ModelLoadError
	if errors.As(err, &loadErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &InferenceError{Stage: stage, Err: err}
}

// normalizeRows reshapes a raw detector output into row-major
// [numBoxes, 4+numClasses], transposing when the attribute axis comes
// first (the common [1, 84, 8400] layout).
func (o *Orchestrator) normalizeRows(raw Tensor) (Tensor, error) {
	attrs := int64(o.numClasses + 4)

	// Squeeze leading batch dimensions of size one.
	shape := raw.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return Tensor{}, errors.Errorf("unexpected detector output shape %v", raw.Shape)
	}

	switch {
	case shape[1] == attrs:
		return Tensor{Shape: []int64{shape[0], shape[1]}, Data: raw.Data}, nil
	case shape[0] == attrs:
		dense := gtensor.New(
			gtensor.WithShape(int(shape[0]), int(shape[1])),
			gtensor.WithBacking(raw.Data),
		)
		transposed, err := gtensor.Transpose(dense, 1, 0)
		if err != nil {
			return Tensor{}, errors.Wrap(err, "transposing detector output")
		}
		data, ok := transposed.Data().([]float32)
		if !ok {
			return Tensor{}, errors.New("transposed detector output is not float32")
		}
		return Tensor{Shape: []int64{shape[1], shape[0]}, Data: data}, nil
	default:
		return Tensor{}, errors.Errorf(
			"detector output shape %v does not carry %d attributes on either axis", raw.Shape, attrs)
	}
}

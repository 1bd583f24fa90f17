package pipeline

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/edge-vision/go-detect/common"
	"github.com/edge-vision/go-detect/images"
	"github.com/edge-vision/go-detect/inference"
)

// Pipeline runs the full detection sequence for one image: letterbox,
// tensor build, two-stage inference, decode.
//
// A pipeline instance is immutable after construction and safe for
// concurrent Run calls; the model handles it wraps are shared read-only.
type Pipeline struct {
	cfg  Config
	orch *inference.Orchestrator
	log  *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger. The default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New constructs a pipeline from a validated configuration and a ready
// orchestrator.
func New(cfg Config, orch *inference.Orchestrator, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pipeline config")
	}
	if orch == nil {
		return nil, errors.New("pipeline requires an orchestrator")
	}
	p := &Pipeline{
		cfg:  cfg,
		orch: orch,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline's immutable configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run executes one full detection pass over img.
//
// Preprocessing and inference failures abort the run with no partial
// results; per-entry decode problems drop only the affected entry. The
// returned sequence is ordered by descending score and is never longer
// than TopK. Identical inputs produce identical output.
func (p *Pipeline) Run(ctx context.Context, img image.Image) ([]common.Detection, error) {
	padded, tr, err := images.Letterbox(img, p.cfg.ModelInputSize)
	if err != nil {
		return nil, errors.Wrap(err, "preprocessing frame")
	}

	data, err := BuildTensor(padded, p.cfg.ModelInputSize)
	if err != nil {
		return nil, err
	}
	input := inference.Tensor{
		Shape: []int64{1, 3, int64(p.cfg.ModelInputSize), int64(p.cfg.ModelInputSize)},
		Data:  data,
	}

	raw, selections, err := p.orch.Run(ctx, input, p.cfg.filterConfig())
	if err != nil {
		return nil, err
	}

	return Decode(raw, selections, tr, p.cfg, p.log), nil
}

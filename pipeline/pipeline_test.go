package pipeline

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edge-vision/go-detect/inference"
)

// cannedDetector is a Model that ignores its input and replays a fixed raw
// output, which is all the pipeline needs for end-to-end testing without a
// backend.
type cannedDetector struct {
	output inference.Tensor
	calls  int
}

func (m *cannedDetector) Run(_ context.Context, inputs map[string]inference.Tensor) (map[string]inference.Tensor, error) {
	m.calls++
	if _, ok := inputs["images"]; !ok {
		panic("detector stub expects the images input")
	}
	return map[string]inference.Tensor{"output0": m.output}, nil
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	for y := 0; y < 720; y += 16 {
		for x := 0; x < 1280; x += 16 {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	return img
}

func testConfig() Config {
	return Config{
		ModelInputSize: 640,
		TopK:           10,
		IoUThreshold:   0.45,
		ScoreThreshold: 0.25,
		ClassLabels:    []string{"person", "car"},
	}
}

func buildPipeline(t *testing.T, detector inference.Model, cfg Config) *Pipeline {
	t.Helper()
	orch, err := inference.NewOrchestrator(detector, inference.GreedyFilter{}, len(cfg.ClassLabels))
	require.NoError(t, err)
	p, err := New(cfg, orch)
	require.NoError(t, err)
	return p
}

// TestPipelineEndToEnd runs a full pass over an HD frame with a canned
// detector output and checks the decoded boxes land in source-image
// coordinates.
func TestPipelineEndToEnd(t *testing.T) {
	// Two well-separated model-space boxes, one per class.
	detector := &cannedDetector{output: inference.Tensor{
		Shape: []int64{1, 2, 6},
		Data: []float32{
			160, 300, 80, 60, 0.9, 0.1,
			480, 400, 60, 80, 0.1, 0.8,
		},
	}}

	p := buildPipeline(t, detector, testConfig())
	detections, err := p.Run(context.Background(), testFrame())
	require.NoError(t, err)

	require.Len(t, detections, 2)
	assert.Equal(t, "person", detections[0].Label)
	assert.Equal(t, "car", detections[1].Label)

	// First box: center (160,300) size 80x60 in the 640 canvas maps back
	// through scale 0.5, padY 140.
	d := detections[0]
	assert.InDelta(t, (160.0-40.0)/0.5, d.Box.X1, 1e-2)
	assert.InDelta(t, (300.0-30.0-140.0)/0.5, d.Box.Y1, 1e-2)
	assert.InDelta(t, (160.0+40.0)/0.5, d.Box.X2, 1e-2)
	assert.InDelta(t, (300.0+30.0-140.0)/0.5, d.Box.Y2, 1e-2)

	for _, det := range detections {
		assert.GreaterOrEqual(t, det.Score, float32(0.25))
		assert.GreaterOrEqual(t, det.Box.X1, float32(0))
		assert.LessOrEqual(t, det.Box.X2, float32(1280))
		assert.LessOrEqual(t, det.Box.Y2, float32(720))
	}
}

// TestPipelineZeroDetections verifies a frame whose candidates all fall
// below the score floor yields an empty sequence, not an error.
func TestPipelineZeroDetections(t *testing.T) {
	detector := &cannedDetector{output: inference.Tensor{
		Shape: []int64{1, 2, 6},
		Data: []float32{
			160, 300, 80, 60, 0.1, 0.05,
			480, 400, 60, 80, 0.02, 0.2,
		},
	}}

	p := buildPipeline(t, detector, testConfig())
	detections, err := p.Run(context.Background(), testFrame())

	require.NoError(t, err)
	assert.Empty(t, detections)
}

// TestPipelineDeterminism verifies repeated runs over identical input
// produce identical detection sequences.
func TestPipelineDeterminism(t *testing.T) {
	detector := &cannedDetector{output: inference.Tensor{
		Shape: []int64{1, 3, 6},
		Data: []float32{
			160, 300, 80, 60, 0.9, 0.1,
			480, 400, 60, 80, 0.1, 0.8,
			320, 320, 50, 50, 0.6, 0.3,
		},
	}}

	p := buildPipeline(t, detector, testConfig())
	frame := testFrame()

	first, err := p.Run(context.Background(), frame)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), frame)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestPipelineTopKCap verifies the output never exceeds TopK.
func TestPipelineTopKCap(t *testing.T) {
	rows := make([]float32, 0, 20*6)
	for i := 0; i < 20; i++ {
		rows = append(rows, float32(30*i), float32(30*i), 20, 20, 0.9, 0.1)
	}
	detector := &cannedDetector{output: inference.Tensor{
		Shape: []int64{1, 20, 6},
		Data:  rows,
	}}

	cfg := testConfig()
	cfg.TopK = 4
	p := buildPipeline(t, detector, cfg)

	detections, err := p.Run(context.Background(), testFrame())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(detections), 4)
}

// TestPipelinePropagatesModelLoadError verifies invoking the pipeline with
// an absent detector handle fails loudly instead of returning garbage.
func TestPipelinePropagatesModelLoadError(t *testing.T) {
	p := buildPipeline(t, nil, testConfig())

	_, err := p.Run(context.Background(), testFrame())
	var loadErr *inference.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

// TestPipelineConfigValidation verifies construction rejects inconsistent
// configuration.
func TestPipelineConfigValidation(t *testing.T) {
	orch, err := inference.NewOrchestrator(&cannedDetector{}, inference.GreedyFilter{}, 2)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero input size", func(c *Config) { c.ModelInputSize = 0 }},
		{"zero topk", func(c *Config) { c.TopK = 0 }},
		{"iou above one", func(c *Config) { c.IoUThreshold = 1.5 }},
		{"negative score", func(c *Config) { c.ScoreThreshold = -0.1 }},
		{"no labels", func(c *Config) { c.ClassLabels = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, orch)
			assert.Error(t, err)
		})
	}

	_, err = New(testConfig(), nil)
	assert.Error(t, err, "missing orchestrator should be rejected")
}

// Command detect runs the two-stage detection pipeline over an image, a
// recorded frame sequence, a video file, or a live camera.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/edge-vision/go-detect/common"
	"github.com/edge-vision/go-detect/controller"
	"github.com/edge-vision/go-detect/inference"
	"github.com/edge-vision/go-detect/logger"
	"github.com/edge-vision/go-detect/models"
	"github.com/edge-vision/go-detect/pipeline"
	"github.com/edge-vision/go-detect/util"
)

// fileConfig is the on-disk configuration for the detect binary.
type fileConfig struct {
	Pipeline      pipeline.Config `yaml:"pipeline"`
	DetectorModel string          `yaml:"detector_model"`
	NMSModel      string          `yaml:"nms_model"`
	ONNXLibrary   string          `yaml:"onnx_library"`
	// Interval is a time.ParseDuration string, e.g. "33ms".
	Interval string `yaml:"interval"`
}

func (c fileConfig) interval() (time.Duration, error) {
	if c.Interval == "" {
		return 33 * time.Millisecond, nil
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing interval %q", c.Interval)
	}
	if d <= 0 {
		return 0, errors.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}

func defaultConfig() fileConfig {
	return fileConfig{
		Pipeline: pipeline.Config{
			ModelInputSize: 640,
			TopK:           100,
			IoUThreshold:   0.45,
			ScoreThreshold: 0.25,
			ClassLabels:    models.COCOLabels(),
		},
		DetectorModel: "models/yolov8n.onnx",
		Interval:      "33ms",
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

func main() {
	var (
		configPath   string
		imagePath    string
		framesDir    string
		videoPath    string
		cameraID     int
		useCamera    bool
		detectorPath string
		nmsPath      string
		libPath      string
		development  bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&imagePath, "image", "", "Run once over a single image file")
	flag.StringVar(&framesDir, "frames", "", "Replay a recorded frame-<n>.<ext> directory")
	flag.StringVar(&videoPath, "video", "", "Run continuously over a video file")
	flag.IntVar(&cameraID, "camera", 0, "Camera device ID for live mode")
	flag.BoolVar(&useCamera, "live", false, "Run continuously from the camera")
	flag.StringVar(&detectorPath, "detector-model", "", "Override detector model path")
	flag.StringVar(&nmsPath, "nms-model", "", "Override NMS model path (empty uses in-process NMS)")
	flag.StringVar(&libPath, "onnx-library", "", "Override onnxruntime shared library path")
	flag.BoolVar(&development, "dev", false, "Use console logging")
	flag.Parse()

	log, err := buildLogger(development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal("configuration failed", zap.Error(err))
	}
	if detectorPath != "" {
		cfg.DetectorModel = detectorPath
	}
	if nmsPath != "" {
		cfg.NMSModel = nmsPath
	}
	if libPath != "" {
		cfg.ONNXLibrary = libPath
	}

	p, cleanup, err := buildPipeline(cfg, log)
	if err != nil {
		log.Fatal("pipeline construction failed", zap.Error(err))
	}
	defer cleanup()

	ctx := context.Background()
	switch {
	case imagePath != "":
		err = runImage(ctx, p, imagePath, log)
	case framesDir != "":
		err = runFrames(ctx, p, framesDir, log)
	case videoPath != "" || useCamera:
		var interval time.Duration
		interval, err = cfg.interval()
		if err != nil {
			break
		}
		var source interface{} = videoPath
		if useCamera {
			source = cameraID
		}
		err = runContinuous(ctx, p, source, interval, log)
	default:
		err = errors.New("one of -image, -frames, -video, or -live is required")
	}
	if err != nil {
		log.Fatal("detection failed", zap.Error(err))
	}
}

func buildLogger(development bool) (*zap.Logger, error) {
	if development {
		return logger.NewDevelopment()
	}
	return logger.NewProduction()
}

// buildPipeline loads the model handles and wires the orchestrator. Both
// models must finish loading here, before any frame is processed.
func buildPipeline(cfg fileConfig, log *zap.Logger) (*pipeline.Pipeline, func(), error) {
	if err := inference.InitRuntime(cfg.ONNXLibrary); err != nil {
		return nil, nil, err
	}

	detector, err := inference.NewONNXModel(cfg.DetectorModel, []string{"images"}, []string{"output0"})
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading detector model")
	}
	closers := []func(){func() { detector.Close() }} //nolint:errcheck

	var filter inference.BoxFilter = inference.GreedyFilter{}
	if cfg.NMSModel != "" {
		opts := inference.DefaultModelFilterOptions()
		nmsModel, err := inference.NewONNXModel(
			cfg.NMSModel,
			[]string{opts.BoxesInput, opts.TopKInput, opts.IoUInput, opts.ScoreInput},
			[]string{opts.SelectedOutput},
		)
		if err != nil {
			detector.Close() //nolint:errcheck
			return nil, nil, errors.Wrap(err, "loading nms model")
		}
		closers = append(closers, func() { nmsModel.Close() }) //nolint:errcheck
		filter = inference.NewModelFilter(nmsModel, opts)
		log.Info("using nms model", zap.String("path", cfg.NMSModel))
	} else {
		log.Info("using in-process greedy nms")
	}

	orch, err := inference.NewOrchestrator(
		detector, filter, len(cfg.Pipeline.ClassLabels),
		inference.WithOrchestratorLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(cfg.Pipeline, orch, pipeline.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return p, cleanup, nil
}

func decodeImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %s", path)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, errors.Wrapf(err, "decoding image %s", path)
}

func runImage(ctx context.Context, p *pipeline.Pipeline, path string, log *zap.Logger) error {
	img, err := decodeImageFile(path)
	if err != nil {
		return err
	}

	detections, err := p.Run(ctx, img)
	if err != nil {
		return err
	}

	reportDetections(log, path, detections)
	return nil
}

func runFrames(ctx context.Context, p *pipeline.Pipeline, dir string, log *zap.Logger) error {
	frames, err := util.LoadFrameFiles(dir)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		img, _, err := image.Decode(bytes.NewReader(frame.Data))
		if err != nil {
			return errors.Wrapf(err, "decoding frame %s", frame.Path)
		}
		detections, err := p.Run(ctx, img)
		if err != nil {
			log.Warn("frame skipped", zap.String("frame", frame.Path), zap.Error(err))
			continue
		}
		reportDetections(log, frame.Path, detections)
	}
	return nil
}

// runContinuous drives the frame loop from a camera or video file until
// interrupted.
func runContinuous(ctx context.Context, p *pipeline.Pipeline, source interface{}, interval time.Duration, log *zap.Logger) error {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return errors.Wrapf(err, "opening capture source %v", source)
	}
	defer capture.Close() //nolint:errcheck

	mat := gocv.NewMat()
	defer mat.Close() //nolint:errcheck

	// The loop serializes runner calls, so the capture and mat need no
	// extra locking.
	runner := func(ctx context.Context) ([]common.Detection, error) {
		if ok := capture.Read(&mat); !ok || mat.Empty() {
			return nil, errors.New("capture source returned no frame")
		}
		img, err := mat.ToImage()
		if err != nil {
			return nil, errors.Wrap(err, "converting frame")
		}
		return p.Run(ctx, img)
	}
	consumer := func(detections []common.Detection) {
		reportDetections(log, "frame", detections)
	}

	loop, err := controller.NewLoop(interval, runner, consumer, controller.WithLoopLogger(log))
	if err != nil {
		return err
	}
	if err := loop.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	loop.Stop()
	m := loop.Metrics()
	log.Info("loop finished",
		zap.Uint64("ticks", m.Ticks),
		zap.Uint64("executed", m.Executed),
		zap.Uint64("skipped", m.Skipped),
		zap.Uint64("failed", m.Failed))
	return nil
}

// reportDetections logs the decoded sequence and its per-class counts.
// Aggregation happens here, outside the core contract.
func reportDetections(log *zap.Logger, source string, detections []common.Detection) {
	counts := make(map[string]int, len(detections))
	for _, d := range detections {
		counts[d.Label]++
		log.Info("detection",
			zap.String("source", source),
			zap.String("label", d.Label),
			zap.Float32("score", d.Score),
			zap.Float32("x1", d.Box.X1),
			zap.Float32("y1", d.Box.Y1),
			zap.Float32("x2", d.Box.X2),
			zap.Float32("y2", d.Box.Y2))
	}
	log.Info("frame summary",
		zap.String("source", source),
		zap.Int("total", len(detections)),
		zap.Any("classes", counts))
}

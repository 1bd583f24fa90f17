package inference

import (
	"context"
	"os"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// DefaultLibraryPath returns the path to the onnxruntime shared library for
// the current platform. The ONNXRUNTIME_SHARED_LIBRARY_PATH environment
// variable overrides the built-in locations.
func DefaultLibraryPath() string {
	if path := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); path != "" {
		return path
	}
	if runtime.GOOS == "windows" {
		return "third_party/onnxruntime.dll"
	}
	if runtime.GOOS == "darwin" {
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.dylib"
		}
		return "third_party/onnxruntime_amd64.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "third_party/onnxruntime_arm64.so"
	}
	return "third_party/onnxruntime.so"
}

// InitRuntime initializes the onnxruntime environment once per process.
//
// Arguments:
//   - libPath: Path to the onnxruntime shared library. Empty selects
//     DefaultLibraryPath.
//
// Returns:
//   - error: An error if the library cannot be located or initialized.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing onnxruntime environment")
	}
	return nil
}

// CloseRuntime tears down the onnxruntime environment.
func CloseRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXModel is a Model backed by an onnxruntime session with fixed input
// and output names. The session is created once and shared read-only across
// all pipeline runs.
type ONNXModel struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

// NewONNXModel loads an ONNX model file into a warmed session.
//
// Arguments:
//   - path: Path to the .onnx model file.
//   - inputs: Ordered input tensor names.
//   - outputs: Ordered output tensor names.
//
// Returns:
//   - *ONNXModel: The ready-to-run handle.
//   - error: An error if session creation fails.
func NewONNXModel(path string, inputs, outputs []string) (*ONNXModel, error) {
	if !ort.IsInitialized() {
		return nil, errors.New("onnxruntime environment not initialized, call InitRuntime first")
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("model requires at least one input and one output name")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(4); err != nil {
		return nil, errors.Wrap(err, "setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(2); err != nil {
		return nil, errors.Wrap(err, "setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "setting graph optimization level")
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating session for %s", path)
	}

	return &ONNXModel{
		session: session,
		inputs:  append([]string(nil), inputs...),
		outputs: append([]string(nil), outputs...),
	}, nil
}

// Run implements Model. Input tensors are copied into backend tensors for
// the duration of the call and outputs are copied back out, so the returned
// tensors have no lifetime ties to the backend.
func (m *ONNXModel) Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error) {
	if m == nil || m.session == nil {
		return nil, &ModelLoadError{Stage: "onnx"}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	inputValues := make([]ort.Value, 0, len(m.inputs))
	defer func() {
		for _, v := range inputValues {
			v.Destroy()
		}
	}()
	for _, name := range m.inputs {
		t, ok := inputs[name]
		if !ok {
			return nil, errors.Errorf("missing input tensor %q", name)
		}
		value, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "creating input tensor %q", name)
		}
		inputValues = append(inputValues, value)
	}

	outputValues := make([]ort.Value, len(m.outputs))
	if err := m.session.Run(inputValues, outputValues); err != nil {
		return nil, errors.Wrap(err, "running session")
	}
	defer func() {
		for _, v := range outputValues {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	results := make(map[string]Tensor, len(m.outputs))
	for i, name := range m.outputs {
		value, ok := outputValues[i].(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %q is not a float32 tensor", name)
		}
		results[name] = Tensor{
			Shape: append([]int64(nil), value.GetShape()...),
			Data:  append([]float32(nil), value.GetData()...),
		}
	}
	return results, nil
}

// Close releases the backend session.
func (m *ONNXModel) Close() error {
	if m.session != nil {
		err := m.session.Destroy()
		m.session = nil
		return err
	}
	return nil
}

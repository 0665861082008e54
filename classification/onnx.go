package classification

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXSession wraps an onnxruntime session bound to preallocated input and
// output tensors.
type ONNXSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
	spec    ModelSpec
}

// ValidateONNXModel checks the artifact's declared inputs and outputs against
// spec. The onnxruntime environment must already be initialized.
func ValidateONNXModel(spec ModelSpec) error {
	inputs, outputs, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return fmt.Errorf("reading model io info: %w", err)
	}

	in, ok := findIOInfo(inputs, spec.InputName)
	if !ok {
		return fmt.Errorf("%w: %q (model declares %v)", ErrInputMissing, spec.InputName, ioNames(inputs))
	}
	if !shapeCompatible(in.Dimensions, spec.InputShape) {
		return fmt.Errorf("%w: input %q declares %v, variant needs %s", ErrShapeMismatch, in.Name, in.Dimensions, spec.InputShape)
	}

	out, ok := findIOInfo(outputs, spec.OutputName)
	if !ok {
		return fmt.Errorf("%w: %q (model declares %v)", ErrOutputMissing, spec.OutputName, ioNames(outputs))
	}
	if n := len(out.Dimensions); n == 0 || (out.Dimensions[n-1] >= 0 && out.Dimensions[n-1] != int64(spec.NumClasses)) {
		return fmt.Errorf("%w: output %q declares %v for %d labels", ErrLabelMismatch, out.Name, out.Dimensions, spec.NumClasses)
	}
	return nil
}

func findIOInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

func ioNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// NewONNXSession creates a session for spec.
func NewONNXSession(spec ModelSpec) (*ONNXSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := spec.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetIntraOpNumThreads(threads)
	options.SetInterOpNumThreads(1)

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.InputShape[:]...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(BatchSize, int64(spec.NumClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{spec.InputName},
		[]string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ONNXSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
		spec:    spec,
	}, nil
}

func (m *ONNXSession) Run(input *Tensor) ([]float32, error) {
	if err := m.spec.checkInput(input); err != nil {
		return nil, err
	}
	copy(m.Input.GetData(), input.Data)

	if err := m.Session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	out := m.Output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (m *ONNXSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

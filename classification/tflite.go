package classification

import (
	"fmt"
	"runtime"

	"github.com/tphakala/go-tflite"
)

// TFLiteSession wraps a TensorFlow Lite interpreter for the same model contract
// as ONNXSession.
type TFLiteSession struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	outputIndex int
	spec        ModelSpec
}

// NewTFLiteSession loads the artifact and locates the named output tensor.
// A missing output name fails the load.
func NewTFLiteSession(spec ModelSpec) (*TFLiteSession, error) {
	model := tflite.NewModelFromFile(spec.Path)
	if model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", spec.Path)
	}

	threads := spec.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)

	s := &TFLiteSession{model: model, options: options, spec: spec}

	s.interpreter = tflite.NewInterpreter(model, options)
	if s.interpreter == nil {
		s.Destroy()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := s.interpreter.AllocateTensors(); status != tflite.OK {
		s.Destroy()
		return nil, fmt.Errorf("tensor allocation failed")
	}

	input := s.interpreter.GetInputTensor(0)
	if input == nil {
		s.Destroy()
		return nil, fmt.Errorf("%w: model has no inputs", ErrInputMissing)
	}
	declared := make([]int64, input.NumDims())
	for i := range declared {
		declared[i] = int64(input.Dim(i))
	}
	if !shapeCompatible(declared, spec.InputShape) {
		s.Destroy()
		return nil, fmt.Errorf("%w: input declares %v, variant needs %s", ErrShapeMismatch, declared, spec.InputShape)
	}

	s.outputIndex = -1
	names := make([]string, 0, s.interpreter.GetOutputTensorCount())
	for i := 0; i < s.interpreter.GetOutputTensorCount(); i++ {
		name := s.interpreter.GetOutputTensor(i).Name()
		names = append(names, name)
		if name == spec.OutputName {
			s.outputIndex = i
		}
	}
	if s.outputIndex < 0 {
		s.Destroy()
		return nil, fmt.Errorf("%w: %q (model declares %v)", ErrOutputMissing, spec.OutputName, names)
	}

	output := s.interpreter.GetOutputTensor(s.outputIndex)
	classes := 0
	if n := output.NumDims(); n > 0 {
		classes = output.Dim(n - 1)
	}
	if classes != spec.NumClasses {
		s.Destroy()
		return nil, fmt.Errorf("%w: output %q has %d classes, want %d",
			ErrLabelMismatch, spec.OutputName, classes, spec.NumClasses)
	}

	return s, nil
}

func (s *TFLiteSession) Run(input *Tensor) ([]float32, error) {
	if err := s.spec.checkInput(input); err != nil {
		return nil, err
	}
	copy(s.interpreter.GetInputTensor(0).Float32s(), input.Data)

	if status := s.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("model inference: tflite invoke status %v", status)
	}

	out := s.interpreter.GetOutputTensor(s.outputIndex).Float32s()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (s *TFLiteSession) Destroy() {
	if s.interpreter != nil {
		s.interpreter.Delete()
		s.interpreter = nil
	}
	if s.options != nil {
		s.options.Delete()
		s.options = nil
	}
	if s.model != nil {
		s.model.Delete()
		s.model = nil
	}
}

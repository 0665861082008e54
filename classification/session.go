package classification

import (
	"context"
	"fmt"
)

// Inferencer runs one input batch through a loaded model and returns the score
// row of its named output.
type Inferencer interface {
	Infer(ctx context.Context, input *Tensor) ([]float32, error)
}

// Session is a single loaded model instance. A session is not safe for
// concurrent use; callers hand out sessions through a pool.
type Session interface {
	Run(input *Tensor) ([]float32, error)
	Destroy()
}

// SessionFactory creates a fresh session for the configured model.
type SessionFactory func() (Session, error)

// ModelSpec is the contract a model artifact must satisfy.
type ModelSpec struct {
	Path       string
	InputName  string
	OutputName string
	InputShape Shape
	NumClasses int
	Threads    int
}

// SpecFor builds the model contract for variant v.
func SpecFor(v Variant, path, inputName, outputName string, threads int) ModelSpec {
	if inputName == "" {
		inputName = DefaultInputName
	}
	if outputName == "" {
		outputName = DefaultOutputName
	}
	return ModelSpec{
		Path:       path,
		InputName:  inputName,
		OutputName: outputName,
		InputShape: v.InputShape(),
		NumClasses: len(v.Labels),
		Threads:    threads,
	}
}

func (s ModelSpec) checkInput(input *Tensor) error {
	if input == nil {
		return fmt.Errorf("%w: nil input", ErrShapeMismatch)
	}
	if input.Shape != s.InputShape || len(input.Data) != s.InputShape.Size() {
		return fmt.Errorf("%w: got %s, model expects %s", ErrShapeMismatch, input.Shape, s.InputShape)
	}
	return nil
}

// shapeCompatible reports whether a model-declared shape accepts want.
// Negative dimensions are dynamic.
func shapeCompatible(declared []int64, want Shape) bool {
	if len(declared) != len(want) {
		return false
	}
	for i, d := range declared {
		if d >= 0 && d != want[i] {
			return false
		}
	}
	return true
}

// NewSessionFactory returns a factory for the given backend.
func NewSessionFactory(backend string, spec ModelSpec) (SessionFactory, error) {
	switch backend {
	case BackendONNX, "":
		return func() (Session, error) { return NewONNXSession(spec) }, nil
	case BackendTFLite:
		return func() (Session, error) { return NewTFLiteSession(spec) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

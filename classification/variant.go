package classification

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// LabelSet is the ordered list of class names. Its order is fixed by the output
// index order of the trained model artifact.
type LabelSet []string

// Index returns the position of label in the set, or -1.
func (l LabelSet) Index(label string) int {
	for i, name := range l {
		if name == label {
			return i
		}
	}
	return -1
}

func (l LabelSet) Contains(label string) bool {
	return l.Index(label) >= 0
}

// Variant describes one deployed model: its preprocessing, its label order and
// the shape of the HTTP contract built around it.
type Variant struct {
	Name      string
	InputSize int
	Filter    imaging.ResampleFilter

	// AlwaysRescale divides pixel values by 255 regardless of the normalize flag.
	AlwaysRescale bool

	Labels       LabelSet
	Explanations map[string]string

	RequireUserID bool
	ExposePaths   bool

	// MissingFieldsMessage is the 400 body for a request lacking required fields.
	MissingFieldsMessage string

	// ModelBasePath is the default artifact location, without extension.
	ModelBasePath string
}

var cataractExplanations = map[string]string{
	"immature": "Kekeruhan sebagian pada lensa (immature cataract).",
	"mature":   "Lensa mengalami kekeruhan total (mature cataract).",
	"normal":   "Tidak ditemukan indikasi katarak.",
}

const (
	VariantFundus64  = "fundus64"
	VariantFundus224 = "fundus224"
)

var builtinVariants = map[string]Variant{
	VariantFundus64: {
		Name:                 VariantFundus64,
		InputSize:            64,
		Filter:               imaging.Box,
		AlwaysRescale:        true,
		Labels:               LabelSet{"immature", "mature", "normal"},
		Explanations:         cataractExplanations,
		RequireUserID:        false,
		ExposePaths:          true,
		MissingFieldsMessage: "image wajib diisi",
		ModelBasePath:        "best_model_fixx/best_model_fixx",
	},
	VariantFundus224: {
		Name:                 VariantFundus224,
		InputSize:            224,
		Filter:               imaging.CatmullRom,
		AlwaysRescale:        false,
		Labels:               LabelSet{"normal", "mature", "immature"},
		Explanations:         cataractExplanations,
		RequireUserID:        true,
		ExposePaths:          false,
		MissingFieldsMessage: "image dan user_id wajib diisi",
		ModelBasePath:        "best_model/best_model",
	},
}

// LookupVariant returns a copy of the named built-in variant.
func LookupVariant(name string) (Variant, error) {
	v, ok := builtinVariants[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownVariant, name, strings.Join(VariantNames(), ", "))
	}
	labels := make(LabelSet, len(v.Labels))
	copy(labels, v.Labels)
	v.Labels = labels
	v.Explanations = maps.Clone(v.Explanations)
	return v, nil
}

func VariantNames() []string {
	names := make([]string, 0, len(builtinVariants))
	for name := range builtinVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InputShape is the NHWC shape the variant's model expects.
func (v Variant) InputShape() Shape {
	return Shape{BatchSize, int64(v.InputSize), int64(v.InputSize), Channels}
}

// Explain returns the canned explanation for label.
func (v Variant) Explain(label string) string {
	if text, ok := v.Explanations[label]; ok {
		return text
	}
	return UnknownExplanation
}

// ModelPath returns the default artifact path for the given backend.
func (v Variant) ModelPath(backend string) string {
	switch backend {
	case BackendTFLite:
		return v.ModelBasePath + ".tflite"
	default:
		return v.ModelBasePath + ".onnx"
	}
}

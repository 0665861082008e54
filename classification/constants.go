package classification

const (
	Channels       = 3
	BatchSize      = 1
	RescaleDivisor = 255.0

	// UnknownExplanation is returned for labels missing from a variant's explanation table.
	UnknownExplanation = "Tidak diketahui"

	DefaultInputName  = "inputs"
	DefaultOutputName = "output_0"
)

// Pipeline stages, used for error attribution and timing metrics.
const (
	StageDecode     = "decode"
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageInterpret  = "interpret"
)

// Inference backends.
const (
	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
)

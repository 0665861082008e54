package classification

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	assert.Equal(t, -1, Argmax(nil))
	assert.Equal(t, 0, Argmax([]float32{0.5}))
	assert.Equal(t, 2, Argmax([]float32{0.1, 0.2, 0.7}))
	assert.Equal(t, 1, Argmax([]float32{0.1, 0.45, 0.45}), "ties resolve to the first index")

	nan := float32(math.NaN())
	assert.Equal(t, 1, Argmax([]float32{0.9, nan, 0.1, nan}), "first NaN wins")
	assert.Equal(t, 0, Argmax([]float32{nan, 0.9}))
}

func TestInterpretUsesVariantLabelOrder(t *testing.T) {
	scores := []float32{0.9, 0.05, 0.05}

	p64, err := mustVariant(t, VariantFundus64).Interpret(scores)
	require.NoError(t, err)
	assert.Equal(t, "immature", p64.Label)
	assert.Equal(t, "Kekeruhan sebagian pada lensa (immature cataract).", p64.Explanation)

	p224, err := mustVariant(t, VariantFundus224).Interpret(scores)
	require.NoError(t, err)
	assert.Equal(t, "normal", p224.Label)
	assert.Equal(t, "Tidak ditemukan indikasi katarak.", p224.Explanation)
}

func TestInterpretConfidenceMap(t *testing.T) {
	v := mustVariant(t, VariantFundus224)
	scores := []float32{1.5, 3.25, 0.5}

	p, err := v.Interpret(scores)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index)
	assert.Equal(t, "mature", p.Label)

	require.Len(t, p.Confidence, len(v.Labels))
	var sum float64
	for i, label := range v.Labels {
		got, ok := p.Confidence[label]
		require.True(t, ok, "missing label %s", label)
		assert.Equal(t, float64(scores[i]), got)
		sum += got
	}
	assert.InDelta(t, 5.25, sum, 1e-9, "scores are not renormalized")
}

func TestInterpretRejectsWrongScoreCount(t *testing.T) {
	v := mustVariant(t, VariantFundus64)
	_, err := v.Interpret([]float32{0.2, 0.8})
	require.ErrorIs(t, err, ErrLabelMismatch)
	assert.Equal(t, StageInterpret, StageOf(err))

	_, err = v.Interpret(nil)
	require.ErrorIs(t, err, ErrLabelMismatch)
}

func TestExplainUnknownLabel(t *testing.T) {
	v := mustVariant(t, VariantFundus64)
	assert.Equal(t, UnknownExplanation, v.Explain("glaucoma"))
	for _, label := range v.Labels {
		assert.NotEqual(t, UnknownExplanation, v.Explain(label))
	}
}

func TestLookupVariant(t *testing.T) {
	v, err := LookupVariant(" Fundus64 ")
	require.NoError(t, err)
	assert.Equal(t, VariantFundus64, v.Name)
	assert.Equal(t, "best_model_fixx/best_model_fixx.onnx", v.ModelPath(BackendONNX))
	assert.Equal(t, "best_model_fixx/best_model_fixx.tflite", v.ModelPath(BackendTFLite))

	v.Labels[0] = "changed"
	again := mustVariant(t, VariantFundus64)
	assert.Equal(t, "immature", again.Labels[0], "lookups return independent label sets")

	v.Explanations["normal"] = "changed"
	delete(v.Explanations, "mature")
	again = mustVariant(t, VariantFundus64)
	assert.Equal(t, "Tidak ditemukan indikasi katarak.", again.Explain("normal"))
	assert.NotEqual(t, UnknownExplanation, again.Explain("mature"))

	_, err = LookupVariant("fundus512")
	require.ErrorIs(t, err, ErrUnknownVariant)
	assert.Equal(t, []string{VariantFundus224, VariantFundus64}, VariantNames())
}

package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecFor(t *testing.T) {
	v := mustVariant(t, VariantFundus224)
	spec := SpecFor(v, "model.onnx", "", "", 2)

	assert.Equal(t, DefaultInputName, spec.InputName)
	assert.Equal(t, DefaultOutputName, spec.OutputName)
	assert.Equal(t, Shape{1, 224, 224, 3}, spec.InputShape)
	assert.Equal(t, 3, spec.NumClasses)
}

func TestCheckInput(t *testing.T) {
	spec := SpecFor(mustVariant(t, VariantFundus64), "m", "in", "out", 1)

	require.NoError(t, spec.checkInput(NewTensor(Shape{1, 64, 64, 3})))
	require.ErrorIs(t, spec.checkInput(NewTensor(Shape{1, 224, 224, 3})), ErrShapeMismatch)
	require.ErrorIs(t, spec.checkInput(nil), ErrShapeMismatch)

	short := &Tensor{Shape: Shape{1, 64, 64, 3}, Data: make([]float32, 10)}
	require.ErrorIs(t, spec.checkInput(short), ErrShapeMismatch)
}

func TestShapeCompatible(t *testing.T) {
	want := Shape{1, 64, 64, 3}
	assert.True(t, shapeCompatible([]int64{1, 64, 64, 3}, want))
	assert.True(t, shapeCompatible([]int64{-1, 64, 64, 3}, want))
	assert.False(t, shapeCompatible([]int64{1, 3, 64, 64}, want))
	assert.False(t, shapeCompatible([]int64{64, 64, 3}, want))
}

func TestNewSessionFactoryRejectsUnknownBackend(t *testing.T) {
	spec := SpecFor(mustVariant(t, VariantFundus64), "m", "", "", 1)

	_, err := NewSessionFactory("torch", spec)
	require.ErrorIs(t, err, ErrUnknownBackend)

	for _, backend := range []string{BackendONNX, BackendTFLite} {
		factory, err := NewSessionFactory(backend, spec)
		require.NoError(t, err)
		assert.NotNil(t, factory)
	}
}

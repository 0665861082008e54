package classification

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessShapePerVariant(t *testing.T) {
	cases := []struct {
		variant string
		want    Shape
	}{
		{VariantFundus64, Shape{1, 64, 64, 3}},
		{VariantFundus224, Shape{1, 224, 224, 3}},
	}
	sizes := []image.Point{{300, 200}, {10, 10}, {64, 64}, {1, 500}}

	for _, tc := range cases {
		pre := NewPreprocessor(mustVariant(t, tc.variant), false)
		for _, size := range sizes {
			tensor, err := pre.FromImage(solidImage(size.X, size.Y, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, tensor.Shape, "variant %s, input %v", tc.variant, size)
			assert.Len(t, tensor.Data, tc.want.Size())
		}
	}
}

func TestPreprocessRescale(t *testing.T) {
	img := solidImage(32, 32, color.NRGBA{R: 255, G: 128, B: 0, A: 255})

	t.Run("fundus64 always rescales", func(t *testing.T) {
		pre := NewPreprocessor(mustVariant(t, VariantFundus64), false)
		require.True(t, pre.Rescales())
		tensor, err := pre.FromImage(img)
		require.NoError(t, err)
		assert.Equal(t, float32(1), tensor.Data[0])
		assert.Equal(t, float32(128)/255, tensor.Data[1])
		assert.Equal(t, float32(0), tensor.Data[2])
	})

	t.Run("fundus224 keeps raw intensities by default", func(t *testing.T) {
		pre := NewPreprocessor(mustVariant(t, VariantFundus224), false)
		require.False(t, pre.Rescales())
		tensor, err := pre.FromImage(img)
		require.NoError(t, err)
		last := len(tensor.Data) - 3
		assert.Equal(t, []float32{255, 128, 0}, tensor.Data[last:])
	})

	t.Run("fundus224 rescales when normalize is set", func(t *testing.T) {
		pre := NewPreprocessor(mustVariant(t, VariantFundus224), true)
		tensor, err := pre.FromImage(img)
		require.NoError(t, err)
		for _, v := range tensor.Data {
			assert.LessOrEqual(t, v, float32(1))
			assert.GreaterOrEqual(t, v, float32(0))
		}
	})
}

func TestPreprocessGrayscaleExpandsToThreeChannels(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range gray.Pix {
		gray.Pix[i] = 77
	}
	pre := NewPreprocessor(mustVariant(t, VariantFundus224), false)
	tensor, err := pre.FromImage(gray)
	require.NoError(t, err)
	assert.Equal(t, []float32{77, 77, 77}, tensor.Data[:3])
}

func TestPreprocessDiscardsAlphaBeforeResize(t *testing.T) {
	for _, alpha := range []uint8{0, 1, 128} {
		img := solidImage(448, 448, color.NRGBA{R: 200, G: 100, B: 50, A: alpha})
		pre := NewPreprocessor(mustVariant(t, VariantFundus224), false)

		tensor, err := pre.FromImage(img)
		require.NoError(t, err)
		assert.Equal(t, []float32{200, 100, 50}, tensor.Data[:3], "alpha %d", alpha)
		last := len(tensor.Data) - 3
		assert.Equal(t, []float32{200, 100, 50}, tensor.Data[last:], "alpha %d", alpha)
	}
}

func TestPreprocessMixedAlphaKeepsStoredColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			a := uint8(255)
			if x%2 == 0 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 60, G: 120, B: 180, A: a})
		}
	}
	pre := NewPreprocessor(mustVariant(t, VariantFundus64), false)

	tensor, err := pre.FromImage(img)
	require.NoError(t, err)
	for i := 0; i < len(tensor.Data); i += 3 {
		require.InDelta(t, 60.0/255, tensor.Data[i], 1e-6)
		require.InDelta(t, 120.0/255, tensor.Data[i+1], 1e-6)
		require.InDelta(t, 180.0/255, tensor.Data[i+2], 1e-6)
	}
}

func TestPreprocessDecodeRejectsGarbage(t *testing.T) {
	pre := NewPreprocessor(mustVariant(t, VariantFundus64), false)
	_, err := pre.Decode(strings.NewReader("not an image"))
	require.Error(t, err)
	assert.Equal(t, StageDecode, StageOf(err))
}

func TestPreprocessRejectsEmptyImage(t *testing.T) {
	pre := NewPreprocessor(mustVariant(t, VariantFundus64), false)
	_, err := pre.FromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)
	assert.Equal(t, StagePreprocess, StageOf(err))
}

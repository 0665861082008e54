package classification

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu        sync.Mutex
	scores    []float32
	err       error
	calls     int
	lastShape Shape
}

func (f *fakeModel) Infer(_ context.Context, input *Tensor) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastShape = input.Shape
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.scores))
	copy(out, f.scores)
	return out, nil
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundus.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func mustVariant(t *testing.T, name string) Variant {
	t.Helper()
	v, err := LookupVariant(name)
	require.NoError(t, err)
	return v
}

package classification

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Shape is an NHWC tensor shape.
type Shape [4]int64

func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= int(d)
	}
	return n
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d %d %d %d]", s[0], s[1], s[2], s[3])
}

// Tensor is a dense float32 batch in NHWC order.
type Tensor struct {
	Shape Shape
	Data  []float32
}

func NewTensor(shape Shape) *Tensor {
	return &Tensor{
		Shape: shape,
		Data:  make([]float32, shape.Size()),
	}
}

// Preprocessor turns a raster image into the model's input tensor.
type Preprocessor struct {
	size    int
	filter  imaging.ResampleFilter
	rescale bool
}

// NewPreprocessor builds the preprocessor for v. normalize enables the 1/255
// rescale for variants that do not apply it unconditionally.
func NewPreprocessor(v Variant, normalize bool) *Preprocessor {
	return &Preprocessor{
		size:    v.InputSize,
		filter:  v.Filter,
		rescale: v.AlwaysRescale || normalize,
	}
}

func (p *Preprocessor) Shape() Shape {
	return Shape{BatchSize, int64(p.size), int64(p.size), Channels}
}

func (p *Preprocessor) Rescales() bool {
	return p.rescale
}

// Decode decodes any raster format registered with the image package.
func (p *Preprocessor) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, stageErr(StageDecode, err)
	}
	return img, nil
}

// FromImage resizes img to the model's square input and packs its RGB
// channels into a batch of one.
func (p *Preprocessor) FromImage(img image.Image) (*Tensor, error) {
	resized, err := p.Resize(img)
	if err != nil {
		return nil, err
	}
	return p.Pack(resized), nil
}

// Resize flattens img to opaque RGB and scales it to the model's square
// input. Alpha is discarded before resampling, so transparent pixels keep
// their stored color.
func (p *Preprocessor) Resize(img image.Image) (*image.NRGBA, error) {
	if img.Bounds().Empty() {
		return nil, stageErr(StagePreprocess, ErrEmptyImage)
	}

	resized := imaging.Resize(opaque(img), p.size, p.size, p.filter)
	if resized.Bounds().Dx() != p.size || resized.Bounds().Dy() != p.size {
		return nil, stageErr(StagePreprocess, fmt.Errorf("resize produced %dx%d, want %dx%d",
			resized.Bounds().Dx(), resized.Bounds().Dy(), p.size, p.size))
	}
	return resized, nil
}

// Pack copies the RGB channels of a Resize result into a new tensor.
func (p *Preprocessor) Pack(resized *image.NRGBA) *Tensor {
	t := NewTensor(p.Shape())
	rowLen := p.size * Channels
	for y := 0; y < p.size; y++ {
		src := resized.Pix[y*resized.Stride : y*resized.Stride+p.size*4]
		dst := t.Data[y*rowLen : (y+1)*rowLen]
		for x := 0; x < p.size; x++ {
			for c := 0; c < Channels; c++ {
				v := float32(src[x*4+c])
				if p.rescale {
					v /= RescaleDivisor
				}
				dst[x*Channels+c] = v
			}
		}
	}
	return t
}

// opaque returns an NRGBA copy of img with every alpha byte set to 255.
func opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

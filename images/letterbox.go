// Package images - Image preprocessing for fixed-size model inputs.
package images

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PadFill is the constant background used for letterbox padding. Mid-gray
// matches the padding convention the detector networks are trained with.
var PadFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Transform records how a source image was mapped into the model input
// canvas, so decoded coordinates can be mapped back out again.
type Transform struct {
	// Scale is the uniform factor applied to both axes.
	Scale float64
	// PadX is the horizontal offset of the resized content's top-left corner.
	PadX float64
	// PadY is the vertical offset of the resized content's top-left corner.
	PadY float64
	// SrcWidth is the original image width in pixels.
	SrcWidth int
	// SrcHeight is the original image height in pixels.
	SrcHeight int
}

// Apply maps a source-image coordinate into model-input space.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.PadX, y*t.Scale + t.PadY
}

// Invert maps a model-input coordinate back into source-image space.
//
// Invariant: Invert(Apply(p)) == p within floating-point tolerance.
func (t Transform) Invert(x, y float64) (float64, float64) {
	return (x - t.PadX) / t.Scale, (y - t.PadY) / t.Scale
}

// Letterbox resizes an arbitrary-resolution image into a target x target
// canvas while preserving aspect ratio, centering the content and filling
// the remainder with PadFill.
//
// Arguments:
//   - img: The source image. It is read but never modified.
//   - target: The square model input size in pixels.
//
// Returns:
//   - *image.RGBA: The padded canvas holding the resized content.
//   - Transform: The recorded scale and padding offsets.
//   - error: An error if the source or target dimensions are invalid.
func Letterbox(img image.Image, target int) (*image.RGBA, Transform, error) {
	if img == nil {
		return nil, Transform{}, errors.New("letterbox: nil source image")
	}
	if target <= 0 {
		return nil, Transform{}, errors.Errorf("letterbox: invalid target size %d", target)
	}

	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()
	if srcWidth <= 0 || srcHeight <= 0 {
		return nil, Transform{}, errors.Errorf("letterbox: invalid source dimensions %dx%d", srcWidth, srcHeight)
	}

	scale := math.Min(
		float64(target)/float64(srcWidth),
		float64(target)/float64(srcHeight),
	)

	newWidth := int(math.Round(float64(srcWidth) * scale))
	newHeight := int(math.Round(float64(srcHeight) * scale))
	if newWidth > target {
		newWidth = target
	}
	if newHeight > target {
		newHeight = target
	}

	resized := resize.Resize(uint(newWidth), uint(newHeight), img, resize.Bilinear)

	padX := float64(target-newWidth) / 2
	padY := float64(target-newHeight) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, target, target))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: PadFill}, image.Point{}, draw.Src)
	draw.Draw(canvas,
		image.Rect(int(padX), int(padY), int(padX)+newWidth, int(padY)+newHeight),
		resized, image.Point{}, draw.Src)

	return canvas, Transform{
		Scale:     scale,
		PadX:      padX,
		PadY:      padY,
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
	}, nil
}

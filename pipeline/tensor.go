package pipeline

import (
	"image"
)

// BuildTensor converts a padded RGBA buffer into a planar, channel-first
// float32 tensor normalized to [0,1], in RGB order.
//
// The function is pure: identical pixel input always produces identical
// numeric output, and a fresh buffer is allocated per call.
//
// Arguments:
//   - img: The letterboxed pixel buffer.
//   - size: The model input edge length; the buffer must be size x size.
//
// Returns:
//   - []float32: The C*H*W tensor data (C=3).
//   - error: A ShapeError if the buffer dimensions do not match.
func BuildTensor(img *image.RGBA, size int) ([]float32, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width != size || height != size {
		return nil, &ShapeError{
			WantWidth: size, WantHeight: size,
			GotWidth: width, GotHeight: height,
		}
	}

	channelSize := size * size
	data := make([]float32, 3*channelSize)
	red := data[:channelSize]
	green := data[channelSize : 2*channelSize]
	blue := data[2*channelSize:]

	i := 0
	for y := 0; y < size; y++ {
		rowStart := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < size; x++ {
			pix := img.Pix[rowStart+x*4 : rowStart+x*4+3 : rowStart+x*4+4]
			red[i] = float32(pix[0]) / 255.0
			green[i] = float32(pix[1]) / 255.0
			blue[i] = float32(pix[2]) / 255.0
			i++
		}
	}
	return data, nil
}

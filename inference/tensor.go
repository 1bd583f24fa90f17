// Package inference - Model handles, inference sessions, and box filtering.
package inference

// Tensor is a dense float32 tensor with an explicit shape.
//
// It is the exchange format between pipeline stages and model backends; the
// data is always row-major in the order the shape declares.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Scalar wraps a single value as a one-element tensor, used to feed
// threshold configuration into an NMS network.
func Scalar(v float32) Tensor {
	return Tensor{Shape: []int64{1}, Data: []float32{v}}
}

// Elems returns the number of elements the shape describes.
func (t Tensor) Elems() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Row returns the i-th row of a 2-D tensor as a slice into the backing data.
// The caller must not hold the slice across mutations of the tensor.
func (t Tensor) Row(i int) []float32 {
	stride := int(t.Shape[len(t.Shape)-1])
	return t.Data[i*stride : (i+1)*stride]
}

// Rows returns the leading dimension of a 2-D tensor.
func (t Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return int(t.Shape[0])
}

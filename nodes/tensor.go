// Package nodes implements the graph nodes exposed to the editor: the image
// folder picker itself, PNG prompt extraction and the tab selectors that
// split multi-tab picker output.
package nodes

// Tensor is a dense float32 buffer with a shape. IMAGE tensors are
// [B, H, W, 3] and MASK tensors are [B, H, W], values in 0..1.
type Tensor struct {
	Shape []int     `json:"shape" yaml:"shape"`
	Data  []float32 `json:"-" yaml:"-"`
}

// Zeros returns a zero-filled tensor of the given shape.
func Zeros(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, volume(shape))}
}

// EmptyImage is the 1x64x64 black placeholder image.
func EmptyImage() Tensor { return Zeros(1, 64, 64, 3) }

// EmptyMask is the 1x64x64 placeholder mask.
func EmptyMask() Tensor { return Zeros(1, 64, 64) }

// Len returns the number of elements.
func (t Tensor) Len() int {
	return volume(t.Shape)
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

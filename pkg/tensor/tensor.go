// Package tensor provides the minimal typed n-dimensional buffer used to pass
// ray, point and mesh batches into the query engine and results back out.
package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// DType identifies the element type stored in a Tensor
type DType int

const (
	Float32 DType = iota
	UInt32
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case UInt32:
		return "UInt32"
	case Int32:
		return "Int32"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Device names where a tensor's storage lives. Only the CPU is supported.
type Device string

// CPU is the default device for every tensor
const CPU Device = "CPU:0"

// ErrShape is returned when a shape does not match the data it describes
var ErrShape = errors.New("tensor shape mismatch")

// Shape is the extent of each tensor dimension
type Shape []int

// NumElements returns the product of all dimensions (1 for a scalar shape)
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes are identical
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Leading returns the shape with the last dimension removed
func (s Shape) Leading() Shape {
	if len(s) == 0 {
		return Shape{}
	}
	return append(Shape{}, s[:len(s)-1]...)
}

// Append returns a copy of the shape with extra trailing dimensions
func (s Shape) Append(dims ...int) Shape {
	out := make(Shape, 0, len(s)+len(dims))
	out = append(out, s...)
	return append(out, dims...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Tensor is a contiguous, row-major buffer with a shape, dtype and device
type Tensor struct {
	shape  Shape
	dtype  DType
	device Device
	f32    []float32
	u32    []uint32
	i32    []int32
}

func checkLength(n int, shape Shape) error {
	if n != shape.NumElements() {
		return fmt.Errorf("%w: %d elements cannot have shape %s", ErrShape, n, shape)
	}
	return nil
}

// FromFloat32 wraps data as a Float32 tensor of the given shape without copying
func FromFloat32(data []float32, shape ...int) (*Tensor, error) {
	if err := checkLength(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: Shape(shape), dtype: Float32, device: CPU, f32: data}, nil
}

// FromUint32 wraps data as a UInt32 tensor of the given shape without copying
func FromUint32(data []uint32, shape ...int) (*Tensor, error) {
	if err := checkLength(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: Shape(shape), dtype: UInt32, device: CPU, u32: data}, nil
}

// FromInt32 wraps data as an Int32 tensor of the given shape without copying
func FromInt32(data []int32, shape ...int) (*Tensor, error) {
	if err := checkLength(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: Shape(shape), dtype: Int32, device: CPU, i32: data}, nil
}

// Zeros allocates a zero-filled tensor
func Zeros(dtype DType, shape ...int) *Tensor {
	t := &Tensor{shape: append(Shape{}, shape...), dtype: dtype, device: CPU}
	n := t.shape.NumElements()
	switch dtype {
	case Float32:
		t.f32 = make([]float32, n)
	case UInt32:
		t.u32 = make([]uint32, n)
	case Int32:
		t.i32 = make([]int32, n)
	}
	return t
}

// Shape returns a copy of the tensor's shape
func (t *Tensor) Shape() Shape {
	return append(Shape{}, t.shape...)
}

// NDim returns the number of dimensions
func (t *Tensor) NDim() int {
	return len(t.shape)
}

// DType returns the element type
func (t *Tensor) DType() DType {
	return t.dtype
}

// Device returns the device holding the data
func (t *Tensor) Device() Device {
	return t.device
}

// NumElements returns the total number of elements
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// Float32s returns the backing slice, or nil if the dtype is not Float32
func (t *Tensor) Float32s() []float32 {
	return t.f32
}

// Uint32s returns the backing slice, or nil if the dtype is not UInt32
func (t *Tensor) Uint32s() []uint32 {
	return t.u32
}

// Int32s returns the backing slice, or nil if the dtype is not Int32
func (t *Tensor) Int32s() []int32 {
	return t.i32
}

// Reshape returns a tensor sharing storage with a new shape
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if err := checkLength(t.NumElements(), shape); err != nil {
		return nil, err
	}
	out := *t
	out.shape = append(Shape{}, shape...)
	return &out, nil
}

// WithDevice returns a tensor sharing storage but tagged with another device
func (t *Tensor) WithDevice(device Device) *Tensor {
	out := *t
	out.device = device
	return &out
}

// To converts the tensor to another dtype, copying the data
func (t *Tensor) To(dtype DType) *Tensor {
	out := Zeros(dtype, t.shape...)
	out.device = t.device
	n := t.NumElements()
	for i := 0; i < n; i++ {
		v := t.at(i)
		switch dtype {
		case Float32:
			out.f32[i] = float32(v)
		case UInt32:
			out.u32[i] = uint32(v)
		case Int32:
			out.i32[i] = int32(v)
		}
	}
	return out
}

func (t *Tensor) at(i int) float64 {
	switch t.dtype {
	case Float32:
		return float64(t.f32[i])
	case UInt32:
		return float64(t.u32[i])
	default:
		return float64(t.i32[i])
	}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[shape=%s, dtype=%s, device=%s]", t.shape, t.dtype, t.device)
}

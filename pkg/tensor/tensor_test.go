package tensor

import (
	"errors"
	"testing"
)

func TestFromFloat32_ShapeMismatch(t *testing.T) {
	_, err := FromFloat32(make([]float32, 5), 2, 3)
	if !errors.Is(err, ErrShape) {
		t.Fatalf("Expected ErrShape, got %v", err)
	}
}

func TestShape_Helpers(t *testing.T) {
	s := Shape{4, 5, 6}
	if s.NumElements() != 120 {
		t.Errorf("Expected 120 elements, got %d", s.NumElements())
	}
	if !s.Leading().Equal(Shape{4, 5}) {
		t.Errorf("Expected leading {4, 5}, got %s", s.Leading())
	}
	if !s.Leading().Append(2).Equal(Shape{4, 5, 2}) {
		t.Errorf("Unexpected appended shape %s", s.Leading().Append(2))
	}
	if s.String() != "{4, 5, 6}" {
		t.Errorf("Unexpected string %q", s.String())
	}
	if (Shape{}).NumElements() != 1 {
		t.Error("Scalar shape should hold one element")
	}
}

func TestTensor_ReshapeSharesStorage(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	a, err := FromFloat32(data, 6)
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.Reshape(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	b.Float32s()[0] = 42
	if data[0] != 42 {
		t.Error("Expected reshape to share storage")
	}
	if _, err := a.Reshape(4, 2); !errors.Is(err, ErrShape) {
		t.Errorf("Expected ErrShape for bad reshape, got %v", err)
	}
}

func TestTensor_To(t *testing.T) {
	a, _ := FromInt32([]int32{0, 1, 3}, 3)
	f := a.To(Float32)
	if f.DType() != Float32 {
		t.Fatalf("Expected Float32, got %s", f.DType())
	}
	want := []float32{0, 1, 3}
	for i, v := range f.Float32s() {
		if v != want[i] {
			t.Errorf("Element %d: expected %f, got %f", i, want[i], v)
		}
	}
	if a.Float32s() != nil {
		t.Error("Int32 tensor should not expose Float32 data")
	}
}

func TestTensor_WithDevice(t *testing.T) {
	a := Zeros(UInt32, 2, 3)
	b := a.WithDevice("CUDA:0")
	if a.Device() != CPU || b.Device() != "CUDA:0" {
		t.Errorf("Unexpected devices %s, %s", a.Device(), b.Device())
	}
	if len(b.Uint32s()) != 6 {
		t.Errorf("Expected 6 elements, got %d", len(b.Uint32s()))
	}
}

package raycast

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/df07/go-raycasting-scene/pkg/accel"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/mesh"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap/zaptest"
)

const tolerance = 1e-5

// newCubeScene returns a scene holding the unit cube centered at the origin
func newCubeScene(t *testing.T, opts ...Option) *Scene {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	s := NewScene(opts...)
	id, err := s.AddTriangleMesh(mesh.NewBox(core.NewVec3(-0.5, -0.5, -0.5), core.NewVec3(0.5, 0.5, 0.5)))
	if err != nil {
		t.Fatalf("AddTriangleMesh failed: %v", err)
	}
	if id != 0 {
		t.Fatalf("Expected first geometry id 0, got %d", id)
	}
	return s
}

func mustFloat32(t *testing.T, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromFloat32(data, shape...)
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	return tt
}

func TestAddTriangles_SequentialIDs(t *testing.T) {
	s := NewScene()
	for i := 0; i < 3; i++ {
		box := mesh.NewBox(core.NewVec3(float64(3*i), 0, 0), core.NewVec3(float64(3*i)+1, 1, 1))
		id, err := s.AddTriangleMesh(box)
		if err != nil {
			t.Fatalf("AddTriangleMesh failed: %v", err)
		}
		if id != uint32(i) {
			t.Errorf("Expected geometry id %d, got %d", i, id)
		}
	}
	if s.NumGeometries() != 3 {
		t.Errorf("Expected 3 geometries, got %d", s.NumGeometries())
	}
	if s.CommitCount() != 0 {
		t.Errorf("Registration must not commit, got %d builds", s.CommitCount())
	}
}

func TestAddTriangles_CopiesCallerBuffers(t *testing.T) {
	box := mesh.NewBox(core.NewVec3(-0.5, -0.5, -0.5), core.NewVec3(0.5, 0.5, 0.5))
	s := NewScene()
	if _, err := s.AddTriangleMesh(box); err != nil {
		t.Fatalf("AddTriangleMesh failed: %v", err)
	}

	// Moving the caller's copy must not move the registered geometry
	box.Translate(core.NewVec3(100, 0, 0))

	rays := mustFloat32(t, []float32{0.1, 0.2, -2, 0, 0, 1}, 1, 6)
	result, err := s.CastRays(rays, Unbounded)
	if err != nil {
		t.Fatalf("CastRays failed: %v", err)
	}
	if result.GeometryIDs.Uint32s()[0] != 0 {
		t.Error("Expected the registered cube to stay in place")
	}
}

func TestAddTriangles_Validation(t *testing.T) {
	vertices := mustFloat32(t, make([]float32, 9), 3, 3)
	triangles, _ := tensor.FromUint32([]uint32{0, 1, 2}, 1, 3)
	flat, _ := triangles.Reshape(3)

	tests := []struct {
		name      string
		vertices  *tensor.Tensor
		triangles *tensor.Tensor
		message   string
	}{
		{"nil vertices", nil, triangles, "vertices Tensor is nil"},
		{"wrong vertex dtype", vertices.To(tensor.Int32), triangles, "vertices Tensor has dtype Int32"},
		{"wrong vertex shape", mustFloat32(t, make([]float32, 8), 4, 2), triangles, "vertices Tensor has shape {4, 2}"},
		{"wrong triangle dtype", vertices, triangles.To(tensor.Float32), "triangles Tensor has dtype Float32"},
		{"wrong device", vertices.WithDevice("CUDA:0"), triangles, "vertices Tensor is on device CUDA:0"},
		{"flat triangles", vertices, flat, "triangles Tensor has shape {3}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScene()
			id, err := s.AddTriangles(tt.vertices, tt.triangles)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Expected ErrInvalidArgument, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Expected message containing %q, got %q", tt.message, err.Error())
			}
			if id != InvalidID {
				t.Errorf("Expected InvalidID, got %d", id)
			}
			if s.NumGeometries() != 0 {
				t.Error("Failed registration must not add a geometry")
			}
		})
	}
}

func TestLazyCommit(t *testing.T) {
	s := newCubeScene(t)
	points := mustFloat32(t, []float32{1, 0, 0}, 1, 3)

	if s.CommitCount() != 0 {
		t.Fatalf("Expected no builds before the first query, got %d", s.CommitCount())
	}

	if _, err := s.ComputeDistance(points); err != nil {
		t.Fatalf("ComputeDistance failed: %v", err)
	}
	if s.CommitCount() != 1 {
		t.Errorf("Expected exactly one implicit build, got %d", s.CommitCount())
	}

	if _, err := s.ComputeOccupancy(points); err != nil {
		t.Fatalf("ComputeOccupancy failed: %v", err)
	}
	if s.CommitCount() != 1 {
		t.Errorf("Expected no rebuild for an unchanged scene, got %d builds", s.CommitCount())
	}

	// Adding geometry invalidates the index
	if _, err := s.AddTriangleMesh(mesh.NewBox(core.NewVec3(2, 2, 2), core.NewVec3(3, 3, 3))); err != nil {
		t.Fatalf("AddTriangleMesh failed: %v", err)
	}
	if s.CommitCount() != 1 {
		t.Errorf("Registration must not build, got %d builds", s.CommitCount())
	}
	if _, err := s.ComputeDistance(points); err != nil {
		t.Fatalf("ComputeDistance failed: %v", err)
	}
	if s.CommitCount() != 2 {
		t.Errorf("Expected a rebuild after adding geometry, got %d builds", s.CommitCount())
	}
}

func TestProviderErrorLeavesSceneUncommitted(t *testing.T) {
	s := NewScene(WithLogger(zaptest.NewLogger(t)))
	vertices := mustFloat32(t, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, 3, 3)
	// Index 7 is out of range; only the provider build catches it
	triangles, _ := tensor.FromUint32([]uint32{0, 1, 7}, 1, 3)
	if _, err := s.AddTriangles(vertices, triangles); err != nil {
		t.Fatalf("AddTriangles failed: %v", err)
	}

	points := mustFloat32(t, []float32{0, 0, 1}, 1, 3)
	for attempt := 0; attempt < 2; attempt++ {
		_, err := s.ComputeClosestPoints(points)
		var accelErr *accel.Error
		if !errors.As(err, &accelErr) {
			t.Fatalf("Attempt %d: expected provider error, got %v", attempt, err)
		}
		if accelErr.Code != accel.ErrorBuildFailed {
			t.Errorf("Attempt %d: expected build failure, got %v", attempt, accelErr.Code)
		}
		if errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Provider errors must not be reported as invalid arguments")
		}
	}
	if s.CommitCount() != 0 {
		t.Errorf("Expected no successful build, got %d", s.CommitCount())
	}
}

func TestEmptyScene(t *testing.T) {
	s := NewScene()
	points := mustFloat32(t, []float32{0, 0, 0, 1, 2, 3}, 2, 3)

	dist, err := s.ComputeDistance(points)
	if err != nil {
		t.Fatalf("ComputeDistance failed: %v", err)
	}
	for i, d := range dist.Float32s() {
		if !math.IsInf(float64(d), 1) {
			t.Errorf("Point %d: expected +Inf distance in empty scene, got %f", i, d)
		}
	}

	closest, err := s.ComputeClosestPoints(points)
	if err != nil {
		t.Fatalf("ComputeClosestPoints failed: %v", err)
	}
	for i, id := range closest.GeometryIDs.Uint32s() {
		if id != InvalidID {
			t.Errorf("Point %d: expected InvalidID, got %d", i, id)
		}
	}

	occupancy, err := s.ComputeOccupancy(points)
	if err != nil {
		t.Fatalf("ComputeOccupancy failed: %v", err)
	}
	for i, o := range occupancy.Float32s() {
		if o != 0 {
			t.Errorf("Point %d: expected occupancy 0 in empty scene, got %f", i, o)
		}
	}
}

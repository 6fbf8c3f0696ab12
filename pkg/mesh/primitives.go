package mesh

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/df07/go-raycasting-scene/pkg/core"
)

// DefaultCells is the marching cubes resolution along the longest bounding box axis
const DefaultCells = 64

// boxFaces lists the corner indices of the 12 box triangles, two per face in
// the order -x, +x, -y, +y, -z, +z. Corner i has bit 0 set for max x, bit 1
// for max y and bit 2 for max z. Every triangle winds counter-clockwise seen
// from outside.
var boxFaces = [36]uint32{
	0, 4, 6, 0, 6, 2,
	1, 3, 7, 1, 7, 5,
	0, 1, 5, 0, 5, 4,
	2, 6, 7, 2, 7, 3,
	0, 2, 3, 0, 3, 1,
	4, 5, 7, 4, 7, 6,
}

// NewBox creates the exact 12-triangle surface of an axis-aligned box
func NewBox(min, max core.Vec3) *Mesh {
	m := &Mesh{
		Vertices:  make([]float32, 0, 24),
		Triangles: append([]uint32(nil), boxFaces[:]...),
	}
	for i := 0; i < 8; i++ {
		corner := min
		if i&1 != 0 {
			corner.X = max.X
		}
		if i&2 != 0 {
			corner.Y = max.Y
		}
		if i&4 != 0 {
			corner.Z = max.Z
		}
		m.Vertices = append(m.Vertices, float32(corner.X), float32(corner.Y), float32(corner.Z))
	}
	return m
}

// FromSDF tessellates a signed distance field with uniform marching cubes and
// welds coincident vertices. Triangles that collapse after welding are dropped.
func FromSDF(s sdf.SDF3, cells int) (*Mesh, error) {
	if cells <= 0 {
		return nil, fmt.Errorf("marching cubes needs a positive cell count, got %d", cells)
	}

	triangles := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))

	m := &Mesh{
		Vertices:  make([]float32, 0, len(triangles)*3),
		Triangles: make([]uint32, 0, len(triangles)*3),
	}
	welded := make(map[[3]float32]uint32, len(triangles))
	for _, tri := range triangles {
		var idx [3]uint32
		for j := 0; j < 3; j++ {
			v := tri[j]
			key := [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
			id, ok := welded[key]
			if !ok {
				id = uint32(m.VertexCount())
				welded[key] = id
				m.Vertices = append(m.Vertices, key[0], key[1], key[2])
			}
			idx[j] = id
		}
		if idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
			continue
		}
		m.Triangles = append(m.Triangles, idx[0], idx[1], idx[2])
	}
	return m, nil
}

// NewSphere tessellates a sphere centered at the origin
func NewSphere(radius float64, cells int) (*Mesh, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sphere: %w", err)
	}
	return FromSDF(s, cells)
}

// NewCylinder tessellates a z-axis cylinder centered at the origin
func NewCylinder(height, radius float64, cells int) (*Mesh, error) {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("cylinder: %w", err)
	}
	return FromSDF(s, cells)
}

// NewTorus tessellates a torus around the z axis. The tube of radius minor
// sweeps a circle of radius major.
func NewTorus(major, minor float64, cells int) (*Mesh, error) {
	if minor <= 0 || major <= minor {
		return nil, fmt.Errorf("torus: need 0 < minor < major, got major %g minor %g", major, minor)
	}
	circle, err := sdf.Circle2D(minor)
	if err != nil {
		return nil, fmt.Errorf("torus: %w", err)
	}
	profile := sdf.Transform2D(circle, sdf.Translate2d(v2.Vec{X: major, Y: 0}))
	s, err := sdf.Revolve3D(profile)
	if err != nil {
		return nil, fmt.Errorf("torus: %w", err)
	}
	return FromSDF(s, cells)
}

// PrimitiveNames lists the shapes NewPrimitive understands
var PrimitiveNames = []string{"box", "sphere", "cylinder", "torus"}

// NewPrimitive builds a named shape that fits the unit cube centered at the
// origin. Cells <= 0 uses DefaultCells.
func NewPrimitive(name string, cells int) (*Mesh, error) {
	if cells <= 0 {
		cells = DefaultCells
	}
	switch name {
	case "box":
		return NewBox(core.NewVec3(-0.5, -0.5, -0.5), core.NewVec3(0.5, 0.5, 0.5)), nil
	case "sphere":
		return NewSphere(0.5, cells)
	case "cylinder":
		return NewCylinder(1, 0.5, cells)
	case "torus":
		return NewTorus(0.35, 0.15, cells)
	default:
		return nil, fmt.Errorf("unknown primitive %q (expected one of %v)", name, PrimitiveNames)
	}
}

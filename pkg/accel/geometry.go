package accel

import (
	"math"

	"github.com/df07/go-raycasting-scene/pkg/core"
)

// InvalidGeometryID marks "no geometry" / "no primitive" in hit and query results
const InvalidGeometryID uint32 = math.MaxUint32

// GeometryType is the primitive kind stored in a Geometry
type GeometryType int

const (
	GeometryTypeTriangle GeometryType = iota
)

func (t GeometryType) String() string {
	switch t {
	case GeometryTypeTriangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// Geometry holds provider-owned vertex and index buffers for one surface
type Geometry struct {
	device    *Device
	kind      GeometryType
	vertices  []float32 // 3 floats per vertex
	indices   []uint32  // 3 indices per triangle
	committed bool
	attached  bool
}

// NewGeometry creates an empty geometry of the given kind
func (d *Device) NewGeometry(kind GeometryType) *Geometry {
	return &Geometry{device: d, kind: kind}
}

// Type returns the primitive kind
func (g *Geometry) Type() GeometryType {
	return g.kind
}

// SetNewVertexBuffer allocates storage for count vertices and returns it for the caller to fill
func (g *Geometry) SetNewVertexBuffer(count int) []float32 {
	g.vertices = make([]float32, 3*count)
	g.committed = false
	return g.vertices
}

// SetNewIndexBuffer allocates storage for count triangles and returns it for the caller to fill
func (g *Geometry) SetNewIndexBuffer(count int) []uint32 {
	g.indices = make([]uint32, 3*count)
	g.committed = false
	return g.indices
}

// Commit marks the buffers as complete
func (g *Geometry) Commit() error {
	if g.vertices == nil || g.indices == nil {
		return g.device.report(ErrorInvalidOperation, "geometry committed without vertex and index buffers")
	}
	g.committed = true
	return nil
}

// VertexCount returns the number of vertices
func (g *Geometry) VertexCount() int {
	return len(g.vertices) / 3
}

// PrimitiveCount returns the number of triangles
func (g *Geometry) PrimitiveCount() int {
	return len(g.indices) / 3
}

// vertex returns vertex i as a Vec3
func (g *Geometry) vertex(i uint32) core.Vec3 {
	return core.Vec3FromFloat32(g.vertices, 3*int(i))
}

// triangle returns the three vertices of primitive primID
func (g *Geometry) triangle(primID uint32) (core.Vec3, core.Vec3, core.Vec3) {
	base := 3 * int(primID)
	return g.vertex(g.indices[base]), g.vertex(g.indices[base+1]), g.vertex(g.indices[base+2])
}

// validate checks the buffers before a scene build
func (g *Geometry) validate(geomID uint32) *Error {
	if !g.committed {
		return g.device.report(ErrorInvalidOperation, "geometry %d was attached but never committed", geomID)
	}
	numVertices := uint32(g.VertexCount())
	for i, idx := range g.indices {
		if idx >= numVertices {
			return g.device.report(ErrorBuildFailed,
				"geometry %d triangle %d references vertex %d but only %d vertices exist",
				geomID, i/3, idx, numVertices)
		}
	}
	for i := 0; i < g.VertexCount(); i++ {
		if !g.vertex(uint32(i)).IsFinite() {
			return g.device.report(ErrorBuildFailed, "geometry %d vertex %d is not finite", geomID, i)
		}
	}
	return nil
}

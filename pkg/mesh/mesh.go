// Package mesh holds indexed triangle meshes and generates primitive shapes
package mesh

import (
	"errors"
	"fmt"

	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
)

// ErrInvalidMesh is wrapped by every Validate failure
var ErrInvalidMesh = errors.New("invalid mesh")

// Mesh is an indexed triangle mesh with flat xyz vertex and index buffers
type Mesh struct {
	Vertices  []float32 // 3 floats per vertex
	Triangles []uint32  // 3 vertex indices per triangle
}

// VertexCount returns the number of vertices
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles
func (m *Mesh) TriangleCount() int {
	return len(m.Triangles) / 3
}

// Validate checks buffer lengths and index ranges
func (m *Mesh) Validate() error {
	if len(m.Vertices)%3 != 0 {
		return fmt.Errorf("%w: %d vertex floats is not a multiple of 3", ErrInvalidMesh, len(m.Vertices))
	}
	if len(m.Triangles)%3 != 0 {
		return fmt.Errorf("%w: %d triangle indices is not a multiple of 3", ErrInvalidMesh, len(m.Triangles))
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Triangles {
		if idx >= n {
			return fmt.Errorf("%w: triangle %d references vertex %d of %d", ErrInvalidMesh, i/3, idx, n)
		}
	}
	return nil
}

// Translate moves every vertex by offset
func (m *Mesh) Translate(offset core.Vec3) {
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		m.Vertices[i] += float32(offset.X)
		m.Vertices[i+1] += float32(offset.Y)
		m.Vertices[i+2] += float32(offset.Z)
	}
}

// Bounds returns the bounding box of the vertices
func (m *Mesh) Bounds() core.AABB {
	if m.VertexCount() == 0 {
		return core.AABB{}
	}
	bounds := core.EmptyAABB()
	for i := 0; i < m.VertexCount(); i++ {
		bounds = bounds.Extend(core.Vec3FromFloat32(m.Vertices, 3*i))
	}
	return bounds
}

// Append adds the triangles of other to m, offsetting its indices
func (m *Mesh) Append(other *Mesh) {
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, idx := range other.Triangles {
		m.Triangles = append(m.Triangles, base+idx)
	}
}

// VertexTensor wraps the vertex buffer as a {N, 3} float32 tensor without copying
func (m *Mesh) VertexTensor() (*tensor.Tensor, error) {
	return tensor.FromFloat32(m.Vertices, m.VertexCount(), 3)
}

// TriangleTensor wraps the index buffer as a {M, 3} uint32 tensor without copying
func (m *Mesh) TriangleTensor() (*tensor.Tensor, error) {
	return tensor.FromUint32(m.Triangles, m.TriangleCount(), 3)
}

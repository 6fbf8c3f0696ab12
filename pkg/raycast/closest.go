package raycast

import (
	"fmt"
	"math"

	"github.com/df07/go-raycasting-scene/pkg/accel"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap"
)

// ClosestPointResult holds the nearest surface point of every query point
type ClosestPointResult struct {
	Points       *tensor.Tensor // float32 x 3; +Inf when the scene is empty
	GeometryIDs  *tensor.Tensor // uint32
	PrimitiveIDs *tensor.Tensor // uint32
}

// Map returns the result tensors by name
func (r *ClosestPointResult) Map() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"points":        r.Points,
		"geometry_ids":  r.GeometryIDs,
		"primitive_ids": r.PrimitiveIDs,
	}
}

// closestPointVisitor tracks the best candidate of every query in one chunk.
// Primitives are resolved through the scene registry.
type closestPointVisitor struct {
	registry []geometryRecord
	points   []float32
	geomIDs  []uint32
	primIDs  []uint32
}

func (v *closestPointVisitor) VisitPrimitive(q *accel.PointQuery, geomID, primID uint32) bool {
	rec := v.registry[geomID]
	if rec.kind != accel.GeometryTypeTriangle {
		return false
	}
	v0, v1, v2 := rec.triangle(primID)
	if v1.Subtract(v0).Cross(v2.Subtract(v0)).LengthSquared() == 0 {
		return false
	}

	p := closestPointOnTriangle(q.Point, v0, v1, v2)
	d := p.Subtract(q.Point).Length()
	if !(d < q.Radius) {
		return false
	}

	q.Radius = d
	k := q.ID
	v.points[3*k] = float32(p.X)
	v.points[3*k+1] = float32(p.Y)
	v.points[3*k+2] = float32(p.Z)
	v.geomIDs[k] = geomID
	v.primIDs[k] = primID
	return true
}

// ComputeClosestPoints finds the nearest surface point for every 3-float point record
func (s *Scene) ComputeClosestPoints(points *tensor.Tensor) (*ClosestPointResult, error) {
	if err := checkRecords("query_points", points, 3); err != nil {
		return nil, err
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}

	leading := points.Shape().Leading()
	result := &ClosestPointResult{
		Points:       tensor.Zeros(tensor.Float32, leading.Append(3)...),
		GeometryIDs:  tensor.Zeros(tensor.UInt32, leading...),
		PrimitiveIDs: tensor.Zeros(tensor.UInt32, leading...),
	}
	err := s.closestPoints(points.Float32s(), result.Points.Float32s(), result.GeometryIDs.Uint32s(), result.PrimitiveIDs.Uint32s())
	if err != nil {
		return nil, err
	}

	s.log.Debug("closest points computed", zap.Int("points", leading.NumElements()))
	return result, nil
}

// closestPoints writes the closest point, geometry id and primitive id of every
// query point. The scene must be committed.
func (s *Scene) closestPoints(query, points []float32, geomIDs, primIDs []uint32) error {
	inf := float32(math.Inf(1))
	for i := range points {
		points[i] = inf
	}
	for i := range geomIDs {
		geomIDs[i] = InvalidID
		primIDs[i] = InvalidID
	}

	n := len(geomIDs)
	batch := make([]accel.PointQuery, min(n, s.maxBatchSize))
	visitor := &closestPointVisitor{registry: s.registry}

	return s.chunks(n, func(start, end int) error {
		chunk := batch[:end-start]
		for i := range chunk {
			chunk[i] = accel.PointQuery{
				Point:  core.Vec3FromFloat32(query, 3*(start+i)),
				Radius: math.Inf(1),
				ID:     uint32(i),
			}
		}

		visitor.points = points[3*start : 3*end]
		visitor.geomIDs = geomIDs[start:end]
		visitor.primIDs = primIDs[start:end]
		if err := s.scene.PointQueryBatch(chunk, visitor); err != nil {
			return fmt.Errorf("closest points: %w", err)
		}
		return nil
	})
}

// closestPointOnTriangle projects p onto triangle (a, b, c) by classifying it
// against the triangle's vertex, edge and face Voronoi regions
func closestPointOnTriangle(p, a, b, c core.Vec3) core.Vec3 {
	ab := b.Subtract(a)
	ac := c.Subtract(a)
	ap := p.Subtract(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Subtract(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Multiply(v))
	}

	cp := p.Subtract(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Multiply(w))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Subtract(b).Multiply(w))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Multiply(v)).Add(ac.Multiply(w))
}

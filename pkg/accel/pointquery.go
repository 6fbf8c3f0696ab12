package accel

import (
	"math"

	"github.com/df07/go-raycasting-scene/pkg/core"
)

// PointQuery is a search ball. Visitors shrink Radius as they find closer
// primitives, which prunes the rest of the traversal.
type PointQuery struct {
	Point  core.Vec3
	Radius float64
	ID     uint32 // Caller-chosen id, lets one visitor serve a whole batch
}

// PointQueryVisitor is called for every primitive whose bounds intersect the
// current search ball. Returning true means Radius was changed. Calls for
// different query ids may run concurrently.
type PointQueryVisitor interface {
	VisitPrimitive(q *PointQuery, geomID, primID uint32) bool
}

// PointQuery visits candidate primitives near q.Point, nearest subtrees first
func (s *Scene) PointQuery(q *PointQuery, visitor PointQueryVisitor) error {
	if err := s.checkCommitted(); err != nil {
		return err
	}
	root := s.bvh.root
	if root == nil {
		return nil
	}
	s.pointQueryNode(root, q, visitor)
	return nil
}

// PointQueryBatch runs every query with a shared visitor, in parallel across
// the device workers
func (s *Scene) PointQueryBatch(queries []PointQuery, visitor PointQueryVisitor) error {
	if err := s.checkCommitted(); err != nil {
		return err
	}
	root := s.bvh.root
	if root == nil {
		return nil
	}
	s.device.parallelFor(len(queries), func(start, end int) {
		for i := start; i < end; i++ {
			s.pointQueryNode(root, &queries[i], visitor)
		}
	})
	return nil
}

// Triangle returns the vertices of a committed primitive
func (s *Scene) Triangle(geomID, primID uint32) (core.Vec3, core.Vec3, core.Vec3) {
	return s.triangle(geomID, primID)
}

func (s *Scene) pointQueryNode(node *bvhNode, q *PointQuery, visitor PointQueryVisitor) {
	if !withinRadius(node.bounds.DistanceSquared(q.Point), q.Radius) {
		return
	}

	if node.isLeaf() {
		for i := range node.prims {
			p := &node.prims[i]
			if !withinRadius(p.bounds.DistanceSquared(q.Point), q.Radius) {
				continue
			}
			visitor.VisitPrimitive(q, p.geomID, p.primID)
		}
		return
	}

	near, far := node.left, node.right
	if far.bounds.DistanceSquared(q.Point) < near.bounds.DistanceSquared(q.Point) {
		near, far = far, near
	}
	s.pointQueryNode(near, q, visitor)
	s.pointQueryNode(far, q, visitor)
}

func withinRadius(distanceSquared, radius float64) bool {
	if math.IsInf(radius, 1) {
		return true
	}
	return distanceSquared <= radius*radius
}

package accel

import (
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/setanarut/vec"
)

// RayHit is one entry of a batched nearest-hit query. The ray part is filled
// by the caller; the hit part is written by IntersectBatch.
type RayHit struct {
	Origin    core.Vec3
	Direction core.Vec3
	TNear     float64
	TFar      float64 // Shrinks to the accepted hit distance
	ID        uint32  // Caller-chosen id passed to the hit filter

	GeomID uint32
	PrimID uint32
	UV     vec.Vec2  // Barycentric weights of the second and third vertex
	Ng     core.Vec3 // Unnormalized geometric normal (v1-v0) x (v2-v0)
}

// Candidate describes a potential hit before it changes traversal state
type Candidate struct {
	RayID  uint32
	T      float64
	GeomID uint32
	PrimID uint32
	UV     vec.Vec2
}

// HitFilter decides whether a candidate hit is accepted. Rejected candidates
// leave the ray untouched so traversal continues past them. Accept may be called
// concurrently for different ray ids but never for the same ray id.
type HitFilter interface {
	Accept(c Candidate) bool
}

// IntersectBatch finds the nearest accepted hit for every record in rayhits.
// A nil filter accepts every candidate.
func (s *Scene) IntersectBatch(rayhits []RayHit, filter HitFilter) error {
	if err := s.checkCommitted(); err != nil {
		return err
	}

	s.device.parallelFor(len(rayhits), func(start, end int) {
		for i := start; i < end; i++ {
			s.intersect1(&rayhits[i], filter)
		}
	})
	return nil
}

func (s *Scene) intersect1(rh *RayHit, filter HitFilter) {
	rh.GeomID = InvalidGeometryID
	rh.PrimID = InvalidGeometryID
	rh.UV = vec.Vec2{}
	rh.Ng = core.Vec3{}

	root := s.bvh.root
	if root == nil {
		return
	}
	ray := core.NewRay(rh.Origin, rh.Direction)
	if !root.bounds.Hit(ray, rh.TNear, rh.TFar) {
		return
	}
	s.intersectNode(root, ray, rh, filter)
}

// intersectNode visits the nearer child first so accepted hits shrink TFar early
func (s *Scene) intersectNode(node *bvhNode, ray core.Ray, rh *RayHit, filter HitFilter) {
	if node.isLeaf() {
		for i := range node.prims {
			s.intersectPrim(&node.prims[i], ray, rh, filter)
		}
		return
	}

	near, far := node.left, node.right
	tNear, hitNear := near.bounds.Entry(ray, rh.TNear, rh.TFar)
	tFar, hitFar := far.bounds.Entry(ray, rh.TNear, rh.TFar)
	if hitNear && hitFar && tFar < tNear {
		near, far = far, near
	} else if !hitNear {
		near, hitNear, far, hitFar = far, hitFar, nil, false
	}

	if hitNear {
		s.intersectNode(near, ray, rh, filter)
	}
	// Re-test: an accepted hit in the near child may have shrunk TFar.
	if hitFar && far.bounds.Hit(ray, rh.TNear, rh.TFar) {
		s.intersectNode(far, ray, rh, filter)
	}
}

func (s *Scene) intersectPrim(p *primRef, ray core.Ray, rh *RayHit, filter HitFilter) {
	v0, v1, v2 := s.triangle(p.geomID, p.primID)
	t, u, v, ok := intersectTriangle(ray, v0, v1, v2, rh.TNear, rh.TFar)
	if !ok {
		return
	}

	uv := vec.Vec2{X: u, Y: v}
	if filter != nil && !filter.Accept(Candidate{RayID: rh.ID, T: t, GeomID: p.geomID, PrimID: p.primID, UV: uv}) {
		return
	}

	rh.TFar = t
	rh.GeomID = p.geomID
	rh.PrimID = p.primID
	rh.UV = uv
	rh.Ng = geometricNormal(v0, v1, v2)
}

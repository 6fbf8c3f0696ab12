package accel

import (
	"time"

	"github.com/df07/go-raycasting-scene/pkg/core"
	"go.uber.org/zap"
)

// Scene is a set of attached geometries and the hierarchy built over them.
// Queries require a successful Commit after the last Attach.
type Scene struct {
	device     *Device
	geometries []*Geometry // indexed by geometry id
	bvh        *bvh
	dirty      bool
	builds     int
}

// NewScene creates an empty scene on the device
func (d *Device) NewScene() *Scene {
	return &Scene{device: d, dirty: true}
}

// Attach adds a geometry to the scene and returns its id. Ids are assigned
// sequentially from zero and never reused.
func (s *Scene) Attach(g *Geometry) (uint32, error) {
	if g.device != s.device {
		return InvalidGeometryID, s.device.report(ErrorInvalidArgument, "geometry belongs to a different device")
	}
	if g.attached {
		return InvalidGeometryID, s.device.report(ErrorInvalidOperation, "geometry is already attached to a scene")
	}
	if len(s.geometries) >= int(InvalidGeometryID) {
		return InvalidGeometryID, s.device.report(ErrorInvalidOperation, "scene geometry limit reached")
	}
	g.attached = true
	s.geometries = append(s.geometries, g)
	s.dirty = true
	return uint32(len(s.geometries) - 1), nil
}

// Commit rebuilds the hierarchy over all attached geometries. On failure the
// previous hierarchy is discarded and the scene stays uncommitted.
func (s *Scene) Commit() error {
	start := time.Now()
	s.bvh = nil
	s.dirty = true

	total := 0
	for geomID, g := range s.geometries {
		if err := g.validate(uint32(geomID)); err != nil {
			return err
		}
		total += g.PrimitiveCount()
	}

	prims := make([]primRef, 0, total)
	for geomID, g := range s.geometries {
		for primID := 0; primID < g.PrimitiveCount(); primID++ {
			v0, v1, v2 := g.triangle(uint32(primID))
			bounds := core.NewAABBFromPoints(v0, v1, v2)
			prims = append(prims, primRef{
				geomID:   uint32(geomID),
				primID:   uint32(primID),
				bounds:   bounds,
				centroid: bounds.Center(),
			})
		}
	}

	s.bvh = newBVH(prims)
	s.dirty = false
	s.builds++

	s.device.log.Debug("scene committed",
		zap.Int("geometries", len(s.geometries)),
		zap.Int("primitives", total),
		zap.Int("build", s.builds),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// BuildCount returns the number of successful hierarchy builds
func (s *Scene) BuildCount() int {
	return s.builds
}

// NumGeometries returns the number of attached geometries
func (s *Scene) NumGeometries() int {
	return len(s.geometries)
}

// Bounds returns the bounds of every committed primitive
func (s *Scene) Bounds() core.AABB {
	if s.bvh == nil || s.bvh.root == nil {
		return core.AABB{}
	}
	return s.bvh.root.bounds
}

func (s *Scene) checkCommitted() error {
	if s.dirty || s.bvh == nil {
		return s.device.report(ErrorInvalidOperation, "scene must be committed before it is queried")
	}
	return nil
}

// triangle fetches the vertices of a primitive referenced by the hierarchy
func (s *Scene) triangle(geomID, primID uint32) (core.Vec3, core.Vec3, core.Vec3) {
	return s.geometries[geomID].triangle(primID)
}

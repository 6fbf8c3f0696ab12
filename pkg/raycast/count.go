package raycast

import (
	"fmt"
	"math"

	"github.com/df07/go-raycasting-scene/pkg/accel"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap"
)

// crossingState is the last crossing recorded for one ray
type crossingState struct {
	geomID uint32
	primID uint32
	t      float32
}

// crossingCounter is a hit filter that counts distinct surface crossings for
// the rays of one chunk and rejects every candidate so traversal covers the
// whole ray. A candidate is a new crossing when it lies on another geometry,
// or on another primitive at a different distance. Hits on neighbouring
// triangles of one mesh at the same distance collapse into one crossing.
type crossingCounter struct {
	state  []crossingState
	counts []int32
}

func newCrossingCounter(size int) *crossingCounter {
	return &crossingCounter{state: make([]crossingState, size)}
}

// reset prepares the counter for a chunk whose counts are written to counts
func (c *crossingCounter) reset(counts []int32) {
	c.counts = counts
	c.state = c.state[:len(counts)]
	for i := range c.state {
		c.state[i] = crossingState{geomID: InvalidID, primID: InvalidID}
	}
}

func (c *crossingCounter) Accept(cand accel.Candidate) bool {
	last := &c.state[cand.RayID]
	t := float32(cand.T)
	if cand.GeomID != last.geomID || (cand.PrimID != last.primID && t != last.t) {
		c.counts[cand.RayID]++
		last.geomID = cand.GeomID
		last.primID = cand.PrimID
		last.t = t
	}
	return false
}

// CountIntersections counts the surface crossings of every 6-float unbounded ray record
func (s *Scene) CountIntersections(rays *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkRecords("rays", rays, 6); err != nil {
		return nil, err
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}

	leading := rays.Shape().Leading()
	counts := tensor.Zeros(tensor.Int32, leading...)
	data := rays.Float32s()
	err := s.countCrossings(counts.Int32s(), func(i int) (core.Vec3, core.Vec3) {
		return core.Vec3FromFloat32(data, 6*i), core.Vec3FromFloat32(data, 6*i+3)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("intersections counted", zap.Int("rays", len(counts.Int32s())))
	return counts, nil
}

// countCrossings fills counts with the crossings of the rays produced by rayAt.
// The scene must be committed.
func (s *Scene) countCrossings(counts []int32, rayAt func(i int) (origin, direction core.Vec3)) error {
	n := len(counts)
	batch := make([]accel.RayHit, min(n, s.maxBatchSize))
	counter := newCrossingCounter(len(batch))

	return s.chunks(n, func(start, end int) error {
		chunk := batch[:end-start]
		for i := range chunk {
			origin, direction := rayAt(start + i)
			chunk[i] = accel.RayHit{
				Origin:    origin,
				Direction: direction,
				TNear:     0,
				TFar:      math.Inf(1),
				ID:        uint32(i),
			}
		}

		counter.reset(counts[start:end])
		if err := s.scene.IntersectBatch(chunk, counter); err != nil {
			return fmt.Errorf("count intersections: %w", err)
		}
		return nil
	})
}

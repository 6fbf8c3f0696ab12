package raycast

import (
	"math"

	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
)

// probeDirection is the parity ray direction used for inside tests. It is not
// axis aligned so it avoids running along the faces of axis-aligned geometry.
var probeDirection = core.NewVec3(1, 1, 1)

// ComputeDistance returns the unsigned distance from every point to the nearest surface
func (s *Scene) ComputeDistance(points *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkRecords("query_points", points, 3); err != nil {
		return nil, err
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}
	return s.distances(points)
}

// ComputeSignedDistance returns the distance to the nearest surface, negative
// for points inside a closed surface
func (s *Scene) ComputeSignedDistance(points *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkRecords("query_points", points, 3); err != nil {
		return nil, err
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}

	result, err := s.distances(points)
	if err != nil {
		return nil, err
	}
	counts, err := s.probeCrossings(points)
	if err != nil {
		return nil, err
	}

	dist := result.Float32s()
	for i, c := range counts {
		if c%2 == 1 {
			dist[i] = -dist[i]
		}
	}
	return result, nil
}

// ComputeOccupancy returns 1 for points inside a closed surface and 0 elsewhere
func (s *Scene) ComputeOccupancy(points *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkRecords("query_points", points, 3); err != nil {
		return nil, err
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}

	counts, err := s.probeCrossings(points)
	if err != nil {
		return nil, err
	}

	result := tensor.Zeros(tensor.Float32, points.Shape().Leading()...)
	occupancy := result.Float32s()
	for i, c := range counts {
		occupancy[i] = float32(c % 2)
	}
	return result, nil
}

func (s *Scene) distances(points *tensor.Tensor) (*tensor.Tensor, error) {
	leading := points.Shape().Leading()
	n := leading.NumElements()
	query := points.Float32s()

	closest := make([]float32, 3*n)
	geomIDs := make([]uint32, n)
	primIDs := make([]uint32, n)
	if err := s.closestPoints(query, closest, geomIDs, primIDs); err != nil {
		return nil, err
	}

	result := tensor.Zeros(tensor.Float32, leading...)
	dist := result.Float32s()
	for i := range dist {
		if geomIDs[i] == InvalidID {
			dist[i] = float32(math.Inf(1))
			continue
		}
		p := core.Vec3FromFloat32(query, 3*i)
		q := core.Vec3FromFloat32(closest, 3*i)
		dist[i] = float32(p.Subtract(q).Length())
	}
	return result, nil
}

func (s *Scene) probeCrossings(points *tensor.Tensor) ([]int32, error) {
	query := points.Float32s()
	counts := make([]int32, len(query)/3)
	err := s.countCrossings(counts, func(i int) (core.Vec3, core.Vec3) {
		return core.Vec3FromFloat32(query, 3*i), probeDirection
	})
	return counts, err
}

package raycast

import (
	"fmt"
	"math"
	"strings"

	"github.com/df07/go-raycasting-scene/pkg/accel"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap"
)

// RayMode selects how the second triple of a ray record is interpreted
type RayMode int

const (
	// Unbounded rays carry a direction and are tested over [0, +Inf)
	Unbounded RayMode = iota
	// Segment rays carry an end point and are tested over [0, 1]
	Segment
)

func (m RayMode) String() string {
	switch m {
	case Unbounded:
		return "unbounded"
	case Segment:
		return "segment"
	default:
		return fmt.Sprintf("RayMode(%d)", int(m))
	}
}

// ParseRayMode converts "unbounded" or "segment" to a RayMode
func ParseRayMode(s string) (RayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded", "ray":
		return Unbounded, nil
	case "segment":
		return Segment, nil
	default:
		return Unbounded, fmt.Errorf("%w: unknown ray mode %q", ErrInvalidArgument, s)
	}
}

// CastResult holds the nearest hit of every ray, shaped like the input's leading dimensions
type CastResult struct {
	THit             *tensor.Tensor // float32; far bound of the ray on a miss
	GeometryIDs      *tensor.Tensor // uint32; InvalidID on a miss
	PrimitiveIDs     *tensor.Tensor // uint32; InvalidID on a miss
	PrimitiveUVs     *tensor.Tensor // float32 x 2
	PrimitiveNormals *tensor.Tensor // float32 x 3, unit length or zero
}

// Map returns the result tensors by name
func (r *CastResult) Map() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		"t_hit":             r.THit,
		"geometry_ids":      r.GeometryIDs,
		"primitive_ids":     r.PrimitiveIDs,
		"primitive_uvs":     r.PrimitiveUVs,
		"primitive_normals": r.PrimitiveNormals,
	}
}

// CastRays finds the nearest hit for every 6-float ray record
func (s *Scene) CastRays(rays *tensor.Tensor, mode RayMode) (*CastResult, error) {
	if err := checkRecords("rays", rays, 6); err != nil {
		return nil, err
	}
	if mode != Unbounded && mode != Segment {
		return nil, fmt.Errorf("%w: unknown ray mode %s", ErrInvalidArgument, mode)
	}
	if err := s.ensureCommitted(); err != nil {
		return nil, err
	}

	leading := rays.Shape().Leading()
	n := leading.NumElements()
	result := &CastResult{
		THit:             tensor.Zeros(tensor.Float32, leading...),
		GeometryIDs:      tensor.Zeros(tensor.UInt32, leading...),
		PrimitiveIDs:     tensor.Zeros(tensor.UInt32, leading...),
		PrimitiveUVs:     tensor.Zeros(tensor.Float32, leading.Append(2)...),
		PrimitiveNormals: tensor.Zeros(tensor.Float32, leading.Append(3)...),
	}
	tHit := result.THit.Float32s()
	geomIDs := result.GeometryIDs.Uint32s()
	primIDs := result.PrimitiveIDs.Uint32s()
	uvs := result.PrimitiveUVs.Float32s()
	normals := result.PrimitiveNormals.Float32s()

	data := rays.Float32s()
	tFar := math.Inf(1)
	if mode == Segment {
		tFar = 1
	}

	batch := make([]accel.RayHit, min(n, s.maxBatchSize))
	err := s.chunks(n, func(start, end int) error {
		chunk := batch[:end-start]
		for i := range chunk {
			origin := core.Vec3FromFloat32(data, 6*(start+i))
			second := core.Vec3FromFloat32(data, 6*(start+i)+3)
			direction := second
			if mode == Segment {
				direction = second.Subtract(origin)
			}
			chunk[i] = accel.RayHit{
				Origin:    origin,
				Direction: direction,
				TNear:     0,
				TFar:      tFar,
				ID:        uint32(i),
			}
		}

		if err := s.scene.IntersectBatch(chunk, nil); err != nil {
			return fmt.Errorf("intersect rays: %w", err)
		}

		for i := range chunk {
			rh := &chunk[i]
			k := start + i
			tHit[k] = float32(rh.TFar)
			geomIDs[k] = rh.GeomID
			primIDs[k] = rh.PrimID
			uvs[2*k] = float32(rh.UV.X)
			uvs[2*k+1] = float32(rh.UV.Y)
			normal := rh.Ng.Normalize()
			normals[3*k] = float32(normal.X)
			normals[3*k+1] = float32(normal.Y)
			normals[3*k+2] = float32(normal.Z)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("rays cast", zap.Int("rays", n), zap.Stringer("mode", mode))
	return result, nil
}

package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/df07/go-raycasting-scene/pkg/raycast"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
)

// jsonFloat encodes infinities and NaN as null
type jsonFloat float32

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 32), nil
}

// RaysRequest carries rays as [ox, oy, oz, dx, dy, dz] rows
type RaysRequest struct {
	Rays [][]float32 `json:"rays"`
	Mode string      `json:"mode,omitempty"` // "unbounded" (default) or "segment"
}

// PointsRequest carries query points as [x, y, z] rows
type PointsRequest struct {
	Points [][]float32 `json:"points"`
}

// CastResponse mirrors raycast.CastResult
type CastResponse struct {
	THit             []jsonFloat    `json:"t_hit"`
	GeometryIDs      []uint32       `json:"geometry_ids"`
	PrimitiveIDs     []uint32       `json:"primitive_ids"`
	PrimitiveUVs     [][2]jsonFloat `json:"primitive_uvs"`
	PrimitiveNormals [][3]jsonFloat `json:"primitive_normals"`
}

// CountResponse holds per-ray crossing counts
type CountResponse struct {
	Counts []int32 `json:"counts"`
}

// ClosestResponse mirrors raycast.ClosestPointResult
type ClosestResponse struct {
	Points       [][3]jsonFloat `json:"points"`
	GeometryIDs  []uint32       `json:"geometry_ids"`
	PrimitiveIDs []uint32       `json:"primitive_ids"`
}

// ValuesResponse holds one value per query point
type ValuesResponse struct {
	Values []jsonFloat `json:"values"`
}

func (s *Server) handleCastRays(w http.ResponseWriter, r *http.Request) {
	var req RaysRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	mode, err := raycast.ParseRayMode(req.Mode)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	rays, err := rayTensor(req.Rays)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.withScene(w, r, func(entry *sceneEntry) (any, error) {
		result, err := entry.scene.CastRays(rays, mode)
		if err != nil {
			return nil, err
		}
		n := len(req.Rays)
		resp := CastResponse{
			THit:             floats(result.THit.Float32s()),
			GeometryIDs:      result.GeometryIDs.Uint32s(),
			PrimitiveIDs:     result.PrimitiveIDs.Uint32s(),
			PrimitiveUVs:     make([][2]jsonFloat, n),
			PrimitiveNormals: make([][3]jsonFloat, n),
		}
		uv, normals := result.PrimitiveUVs.Float32s(), result.PrimitiveNormals.Float32s()
		for i := 0; i < n; i++ {
			resp.PrimitiveUVs[i] = [2]jsonFloat{jsonFloat(uv[2*i]), jsonFloat(uv[2*i+1])}
			resp.PrimitiveNormals[i] = vec3(normals, i)
		}
		return resp, nil
	})
}

func (s *Server) handleCountIntersections(w http.ResponseWriter, r *http.Request) {
	var req RaysRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rays, err := rayTensor(req.Rays)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.withScene(w, r, func(entry *sceneEntry) (any, error) {
		counts, err := entry.scene.CountIntersections(rays)
		if err != nil {
			return nil, err
		}
		return CountResponse{Counts: counts.Int32s()}, nil
	})
}

func (s *Server) handleClosestPoints(w http.ResponseWriter, r *http.Request) {
	var req PointsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	points, err := pointTensor(req.Points)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.withScene(w, r, func(entry *sceneEntry) (any, error) {
		result, err := entry.scene.ComputeClosestPoints(points)
		if err != nil {
			return nil, err
		}
		resp := ClosestResponse{
			Points:       make([][3]jsonFloat, len(req.Points)),
			GeometryIDs:  result.GeometryIDs.Uint32s(),
			PrimitiveIDs: result.PrimitiveIDs.Uint32s(),
		}
		data := result.Points.Float32s()
		for i := range resp.Points {
			resp.Points[i] = vec3(data, i)
		}
		return resp, nil
	})
}

// pointHandler serves a query that maps each point to one float
func (s *Server) pointHandler(query func(*raycast.Scene, *tensor.Tensor) (*tensor.Tensor, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PointsRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		points, err := pointTensor(req.Points)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.withScene(w, r, func(entry *sceneEntry) (any, error) {
			values, err := query(entry.scene, points)
			if err != nil {
				return nil, err
			}
			return ValuesResponse{Values: floats(values.Float32s())}, nil
		})
	}
}

func rayTensor(rows [][]float32) (*tensor.Tensor, error) {
	return rowTensor("rays", rows, 6)
}

func pointTensor(rows [][]float32) (*tensor.Tensor, error) {
	return rowTensor("points", rows, 3)
}

// rowTensor flattens JSON rows into an {N, width} tensor
func rowTensor(name string, rows [][]float32, width int) (*tensor.Tensor, error) {
	data := make([]float32, 0, width*len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: %s row %d has %d values but expected %d",
				raycast.ErrInvalidArgument, name, i, len(row), width)
		}
		data = append(data, row...)
	}
	return tensor.FromFloat32(data, len(rows), width)
}

func floats(data []float32) []jsonFloat {
	out := make([]jsonFloat, len(data))
	for i, v := range data {
		out[i] = jsonFloat(v)
	}
	return out
}

func vec3(data []float32, i int) [3]jsonFloat {
	return [3]jsonFloat{jsonFloat(data[3*i]), jsonFloat(data[3*i+1]), jsonFloat(data[3*i+2])}
}

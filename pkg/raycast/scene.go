// Package raycast answers batched ray, crossing and nearest-point queries over
// a collection of triangle meshes, and derives distance, signed distance and
// occupancy from them.
//
// A Scene is not safe for concurrent use. Callers must serialize geometry
// registration and queries on one Scene; separate scenes are independent.
package raycast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/df07/go-raycasting-scene/pkg/accel"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/mesh"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap"
)

// InvalidID marks "no geometry" and "no primitive" in query results
const InvalidID = accel.InvalidGeometryID

// DefaultMaxBatchSize caps the number of rays or points handed to the
// provider in one call
const DefaultMaxBatchSize = 1 << 20

// ErrInvalidArgument is wrapped by every precondition failure
var ErrInvalidArgument = errors.New("invalid argument")

// geometryRecord is a view into buffers owned by the provider geometry
type geometryRecord struct {
	kind      accel.GeometryType
	vertices  []float32
	triangles []uint32
}

func (r geometryRecord) triangle(primID uint32) (core.Vec3, core.Vec3, core.Vec3) {
	base := 3 * int(primID)
	return core.Vec3FromFloat32(r.vertices, 3*int(r.triangles[base])),
		core.Vec3FromFloat32(r.vertices, 3*int(r.triangles[base+1])),
		core.Vec3FromFloat32(r.vertices, 3*int(r.triangles[base+2]))
}

// Scene owns an acceleration provider instance and the registry of the
// geometries attached to it
type Scene struct {
	device       *accel.Device
	scene        *accel.Scene
	registry     []geometryRecord // indexed by geometry id
	committed    bool
	maxBatchSize int
	log          *zap.Logger
}

type settings struct {
	maxBatchSize int
	workers      int
	log          *zap.Logger
}

// Option configures a Scene
type Option func(*settings)

// WithMaxBatchSize bounds the rays or points per provider call. Values <= 0 use DefaultMaxBatchSize.
func WithMaxBatchSize(n int) Option {
	return func(s *settings) {
		s.maxBatchSize = n
	}
}

// WithWorkers sets the number of provider traversal workers. Values <= 0 use all CPUs.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// WithLogger sets the scene logger
func WithLogger(log *zap.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScene creates an empty scene
func NewScene(opts ...Option) *Scene {
	cfg := settings{maxBatchSize: DefaultMaxBatchSize, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxBatchSize <= 0 {
		cfg.maxBatchSize = DefaultMaxBatchSize
	}

	device := accel.NewDevice(accel.WithWorkers(cfg.workers), accel.WithLogger(cfg.log))
	return &Scene{
		device:       device,
		scene:        device.NewScene(),
		maxBatchSize: cfg.maxBatchSize,
		log:          cfg.log,
	}
}

// AddTriangles copies a {N, 3} float32 vertex tensor and a {M, 3} uint32
// triangle tensor into provider-owned buffers and returns the new geometry id.
// The scene is rebuilt lazily by the next query.
func (s *Scene) AddTriangles(vertices, triangles *tensor.Tensor) (uint32, error) {
	if err := checkMatrix("vertices", vertices, tensor.Float32, 3); err != nil {
		return InvalidID, err
	}
	if err := checkMatrix("triangles", triangles, tensor.UInt32, 3); err != nil {
		return InvalidID, err
	}

	numVertices := vertices.Shape()[0]
	numTriangles := triangles.Shape()[0]
	if uint64(numVertices) > math.MaxUint32 {
		return InvalidID, fmt.Errorf("%w: vertices Tensor has %d vertices but at most %d are supported",
			ErrInvalidArgument, numVertices, uint64(math.MaxUint32))
	}

	g := s.device.NewGeometry(accel.GeometryTypeTriangle)
	vb := g.SetNewVertexBuffer(numVertices)
	copy(vb, vertices.Float32s())
	ib := g.SetNewIndexBuffer(numTriangles)
	copy(ib, triangles.Uint32s())
	if err := g.Commit(); err != nil {
		return InvalidID, fmt.Errorf("commit geometry: %w", err)
	}

	s.committed = false
	geomID, err := s.scene.Attach(g)
	if err != nil {
		return InvalidID, fmt.Errorf("attach geometry: %w", err)
	}
	s.registry = append(s.registry, geometryRecord{kind: g.Type(), vertices: vb, triangles: ib})

	s.log.Debug("geometry added",
		zap.Uint32("geometry_id", geomID),
		zap.Int("vertices", numVertices),
		zap.Int("triangles", numTriangles))
	return geomID, nil
}

// AddTriangleMesh adds a mesh container
func (s *Scene) AddTriangleMesh(m *mesh.Mesh) (uint32, error) {
	if err := m.Validate(); err != nil {
		return InvalidID, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	vertices, err := m.VertexTensor()
	if err != nil {
		return InvalidID, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	triangles, err := m.TriangleTensor()
	if err != nil {
		return InvalidID, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.AddTriangles(vertices, triangles)
}

// ensureCommitted rebuilds the acceleration structure after any geometry change.
// On failure the scene stays uncommitted so the next query retries the build.
func (s *Scene) ensureCommitted() error {
	if s.committed {
		return nil
	}
	start := time.Now()
	if err := s.scene.Commit(); err != nil {
		return fmt.Errorf("commit scene: %w", err)
	}
	s.committed = true
	s.log.Debug("scene built",
		zap.Int("geometries", len(s.registry)),
		zap.Int("builds", s.scene.BuildCount()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Close releases the scene's traversal workers. Queries still work afterwards
// but run on the calling goroutine.
func (s *Scene) Close() {
	s.device.Close()
}

// CommitCount returns how many times the acceleration structure has been built
func (s *Scene) CommitCount() int {
	return s.scene.BuildCount()
}

// NumGeometries returns the number of registered geometries
func (s *Scene) NumGeometries() int {
	return len(s.registry)
}

// chunks calls fn for consecutive ranges of at most maxBatchSize records
func (s *Scene) chunks(n int, fn func(start, end int) error) error {
	for start := 0; start < n; start += s.maxBatchSize {
		if err := fn(start, min(start+s.maxBatchSize, n)); err != nil {
			return err
		}
	}
	return nil
}

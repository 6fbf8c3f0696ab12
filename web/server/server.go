// Package server exposes raycasting scenes over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/df07/go-raycasting-scene/pkg/config"
	"github.com/df07/go-raycasting-scene/pkg/core"
	"github.com/df07/go-raycasting-scene/pkg/mesh"
	"github.com/df07/go-raycasting-scene/pkg/raycast"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server handles web requests against a set of in-memory scenes
type Server struct {
	cfg     config.ServerConfig
	raycast config.RaycastConfig
	log     *zap.Logger

	mu     sync.RWMutex
	scenes map[string]*sceneEntry
}

// sceneEntry serializes access to one scene; queries commit lazily and may
// rebuild the index.
type sceneEntry struct {
	mu      sync.Mutex
	scene   *raycast.Scene
	created time.Time
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:     cfg.Server,
		raycast: cfg.Raycast,
		log:     log,
		scenes:  make(map[string]*sceneEntry),
	}
}

// GeometryRequest describes one geometry: either a built-in primitive or an
// explicit triangle mesh. Offset translates it before registration.
type GeometryRequest struct {
	Primitive string       `json:"primitive,omitempty"`
	Cells     int          `json:"cells,omitempty"`
	Vertices  [][3]float32 `json:"vertices,omitempty"`
	Triangles [][3]uint32  `json:"triangles,omitempty"`
	Offset    *[3]float64  `json:"offset,omitempty"`
}

// GeometryResponse reports where a geometry was registered
type GeometryResponse struct {
	ID         string `json:"id"`
	GeometryID uint32 `json:"geometryId"`
}

// SceneInfo summarizes a scene
type SceneInfo struct {
	ID         string    `json:"id"`
	Geometries int       `json:"geometries"`
	Commits    int       `json:"commits"`
	Created    time.Time `json:"created"`
}

// Handler returns the API routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/invalid-id", s.handleInvalidID)

	mux.HandleFunc("POST /api/scenes", s.handleCreateScene)
	mux.HandleFunc("GET /api/scenes/{id}", s.handleGetScene)
	mux.HandleFunc("DELETE /api/scenes/{id}", s.handleDeleteScene)
	mux.HandleFunc("POST /api/scenes/{id}/geometries", s.handleAddGeometry)

	mux.HandleFunc("POST /api/scenes/{id}/cast-rays", s.handleCastRays)
	mux.HandleFunc("POST /api/scenes/{id}/count-intersections", s.handleCountIntersections)
	mux.HandleFunc("POST /api/scenes/{id}/closest-points", s.handleClosestPoints)
	mux.HandleFunc("POST /api/scenes/{id}/distance", s.pointHandler((*raycast.Scene).ComputeDistance))
	mux.HandleFunc("POST /api/scenes/{id}/signed-distance", s.pointHandler((*raycast.Scene).ComputeSignedDistance))
	mux.HandleFunc("POST /api/scenes/{id}/occupancy", s.pointHandler((*raycast.Scene).ComputeOccupancy))

	return s.logRequests(mux)
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("starting web server", zap.String("addr", "http://localhost"+addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInvalidID(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]uint32{"invalidId": raycast.InvalidID})
}

// handleCreateScene creates a scene holding one initial geometry
func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var req GeometryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	m, err := buildMesh(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.full() {
		s.writeError(w, s.errSceneLimit())
		return
	}

	entry := &sceneEntry{
		scene: raycast.NewScene(
			raycast.WithMaxBatchSize(s.raycast.MaxBatchSize),
			raycast.WithWorkers(s.raycast.Workers),
			raycast.WithLogger(s.log),
		),
		created: time.Now(),
	}
	geomID, err := entry.scene.AddTriangleMesh(m)
	if err != nil {
		entry.scene.Close()
		s.writeError(w, err)
		return
	}

	// Another request may have taken the last slot while the scene was built
	id := uuid.NewString()
	s.mu.Lock()
	if len(s.scenes) >= s.cfg.MaxScenes {
		s.mu.Unlock()
		entry.scene.Close()
		s.writeError(w, s.errSceneLimit())
		return
	}
	s.scenes[id] = entry
	s.mu.Unlock()

	s.log.Info("scene created", zap.String("scene", id), zap.Int("triangles", m.TriangleCount()))
	s.writeJSON(w, http.StatusCreated, GeometryResponse{ID: id, GeometryID: geomID})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.withScene(w, r, func(entry *sceneEntry) (any, error) {
		return SceneInfo{
			ID:         id,
			Geometries: entry.scene.NumGeometries(),
			Commits:    entry.scene.CommitCount(),
			Created:    entry.created,
		}, nil
	})
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	entry, ok := s.scenes[id]
	delete(s.scenes, id)
	s.mu.Unlock()

	if !ok {
		s.writeError(w, errUnknownScene(id))
		return
	}

	// Wait for in-flight queries before releasing the workers
	entry.mu.Lock()
	entry.scene.Close()
	entry.mu.Unlock()
	s.log.Info("scene deleted", zap.String("scene", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddGeometry(w http.ResponseWriter, r *http.Request) {
	var req GeometryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	m, err := buildMesh(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id := r.PathValue("id")
	s.withScene(w, r, func(entry *sceneEntry) (any, error) {
		geomID, err := entry.scene.AddTriangleMesh(m)
		if err != nil {
			return nil, err
		}
		return GeometryResponse{ID: id, GeometryID: geomID}, nil
	})
}

// buildMesh turns a geometry request into a mesh
func buildMesh(req *GeometryRequest) (*mesh.Mesh, error) {
	var m *mesh.Mesh
	switch {
	case req.Primitive != "" && len(req.Vertices) > 0:
		return nil, badRequest(errors.New("primitive and vertices are mutually exclusive"))
	case req.Primitive != "":
		var err error
		if m, err = mesh.NewPrimitive(req.Primitive, req.Cells); err != nil {
			return nil, badRequest(err)
		}
	default:
		m = &mesh.Mesh{
			Vertices:  make([]float32, 0, 3*len(req.Vertices)),
			Triangles: make([]uint32, 0, 3*len(req.Triangles)),
		}
		for _, v := range req.Vertices {
			m.Vertices = append(m.Vertices, v[:]...)
		}
		for _, tri := range req.Triangles {
			m.Triangles = append(m.Triangles, tri[:]...)
		}
		if err := m.Validate(); err != nil {
			return nil, badRequest(err)
		}
	}

	if req.Offset != nil {
		m.Translate(core.NewVec3(req.Offset[0], req.Offset[1], req.Offset[2]))
	}
	return m, nil
}

// Close releases every scene's workers
func (s *Server) Close() {
	s.mu.Lock()
	scenes := s.scenes
	s.scenes = make(map[string]*sceneEntry)
	s.mu.Unlock()

	for _, entry := range scenes {
		entry.mu.Lock()
		entry.scene.Close()
		entry.mu.Unlock()
	}
}

func (s *Server) full() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scenes) >= s.cfg.MaxScenes
}

func (s *Server) errSceneLimit() error {
	return &httpError{status: http.StatusTooManyRequests, err: fmt.Errorf("scene limit of %d reached", s.cfg.MaxScenes)}
}

func (s *Server) lookup(id string) *sceneEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenes[id]
}

// withScene runs fn while holding the scene's lock and writes its result
func (s *Server) withScene(w http.ResponseWriter, r *http.Request, fn func(entry *sceneEntry) (any, error)) {
	entry := s.lookup(r.PathValue("id"))
	if entry == nil {
		s.writeError(w, errUnknownScene(r.PathValue("id")))
		return
	}

	entry.mu.Lock()
	result, err := fn(entry)
	entry.mu.Unlock()

	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decode reads a JSON body no larger than the configured limit
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &httpError{status: http.StatusRequestEntityTooLarge, err: err}
		}
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/df07/go-raycasting-scene/pkg/config"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, opts ...func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MaxScenes = 4
	cfg.Server.MaxBodyBytes = 1 << 16
	for _, opt := range opts {
		opt(cfg)
	}
	srv := NewServer(cfg, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// createBoxScene registers the unit cube centered at the origin
func createBoxScene(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	var created GeometryResponse
	if status := do(t, ts, "POST", "/api/scenes", GeometryRequest{Primitive: "box"}, &created); status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}
	if created.ID == "" || created.GeometryID != 0 {
		t.Fatalf("Unexpected create response %+v", created)
	}
	return created.ID
}

func TestHealthAndInvalidID(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	if status := do(t, ts, "GET", "/api/health", nil, &health); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", health)
	}

	var invalid map[string]uint64
	do(t, ts, "GET", "/api/invalid-id", nil, &invalid)
	if invalid["invalidId"] != 4294967295 {
		t.Errorf("Expected invalid id 4294967295, got %v", invalid)
	}
}

func TestCastRays(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	var raw map[string]json.RawMessage
	req := RaysRequest{Rays: [][]float32{{0.1, 0.2, -2, 0, 0, 1}, {0, 5, -2, 0, 0, 1}}}
	if status := do(t, ts, "POST", "/api/scenes/"+id+"/cast-rays", req, &raw); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}

	if got := string(raw["t_hit"]); got != "[1.5,null]" {
		t.Errorf("Expected t_hit [1.5,null], got %s", got)
	}
	if got := string(raw["geometry_ids"]); got != "[0,4294967295]" {
		t.Errorf("Expected geometry ids [0,4294967295], got %s", got)
	}

	var normals [][3]float64
	if err := json.Unmarshal(raw["primitive_normals"], &normals); err != nil {
		t.Fatalf("normals: %v", err)
	}
	if normals[0][2] != -1 {
		t.Errorf("Expected -z normal for the bottom face, got %v", normals[0])
	}
}

func TestCastRays_Segment(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	var resp struct {
		THit []*float64 `json:"t_hit"`
	}
	req := RaysRequest{Rays: [][]float32{{0.1, 0.2, -2, 0, 0, 4}, {0.1, 0.2, -2, 0, 0, 1}}, Mode: "segment"}
	if status := do(t, ts, "POST", "/api/scenes/"+id+"/cast-rays", req, &resp); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if resp.THit[0] == nil || *resp.THit[0] != 0.375 {
		t.Errorf("Expected t=0.375, got %v", resp.THit[0])
	}
	// The segment ends before reaching the box
	if resp.THit[1] == nil || *resp.THit[1] != 1 {
		t.Errorf("Expected segment miss t=1, got %v", resp.THit[1])
	}
}

func TestPointQueries(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)
	points := PointsRequest{Points: [][]float32{{0, 0, 0}, {2, 0, 0}}}

	tests := []struct {
		path     string
		expected []float64
	}{
		{"distance", []float64{0.5, 1.5}},
		{"signed-distance", []float64{-0.5, 1.5}},
		{"occupancy", []float64{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var resp struct {
				Values []float64 `json:"values"`
			}
			if status := do(t, ts, "POST", "/api/scenes/"+id+"/"+tt.path, points, &resp); status != http.StatusOK {
				t.Fatalf("Expected 200, got %d", status)
			}
			if len(resp.Values) != len(tt.expected) {
				t.Fatalf("Expected %d values, got %v", len(tt.expected), resp.Values)
			}
			for i := range tt.expected {
				if resp.Values[i] != tt.expected[i] {
					t.Errorf("Value %d: expected %g, got %g", i, tt.expected[i], resp.Values[i])
				}
			}
		})
	}
}

func TestCountAndClosest(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	var counts CountResponse
	rays := RaysRequest{Rays: [][]float32{{0.1, 0.2, -2, 0, 0, 1}, {0.1, 0.2, 0, 0, 0, 1}}}
	do(t, ts, "POST", "/api/scenes/"+id+"/count-intersections", rays, &counts)
	if len(counts.Counts) != 2 || counts.Counts[0] != 2 || counts.Counts[1] != 1 {
		t.Errorf("Expected counts [2 1], got %v", counts.Counts)
	}

	var closest struct {
		Points      [][3]float64 `json:"points"`
		GeometryIDs []uint32     `json:"geometry_ids"`
	}
	do(t, ts, "POST", "/api/scenes/"+id+"/closest-points", PointsRequest{Points: [][]float32{{2, 0, 0}}}, &closest)
	if len(closest.Points) != 1 || closest.Points[0] != [3]float64{0.5, 0, 0} {
		t.Errorf("Expected closest point (0.5, 0, 0), got %v", closest.Points)
	}
	if closest.GeometryIDs[0] != 0 {
		t.Errorf("Expected geometry 0, got %d", closest.GeometryIDs[0])
	}
}

func TestAddGeometry(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	// A single triangle in the plane z = 5
	tri := GeometryRequest{
		Vertices:  [][3]float32{{-1, -1, 0}, {1, -1, 0}, {0, 1, 0}},
		Triangles: [][3]uint32{{0, 1, 2}},
		Offset:    &[3]float64{0, 0, 5},
	}
	var added GeometryResponse
	if status := do(t, ts, "POST", "/api/scenes/"+id+"/geometries", tri, &added); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if added.GeometryID != 1 {
		t.Errorf("Expected geometry id 1, got %d", added.GeometryID)
	}

	var resp struct {
		GeometryIDs []uint32 `json:"geometry_ids"`
	}
	rays := RaysRequest{Rays: [][]float32{{0, 0, 3, 0, 0, 1}}}
	do(t, ts, "POST", "/api/scenes/"+id+"/cast-rays", rays, &resp)
	if len(resp.GeometryIDs) != 1 || resp.GeometryIDs[0] != 1 {
		t.Errorf("Expected ray to hit the added triangle, got %v", resp.GeometryIDs)
	}

	var info SceneInfo
	do(t, ts, "GET", "/api/scenes/"+id, nil, &info)
	if info.Geometries != 2 || info.Commits != 1 {
		t.Errorf("Expected 2 geometries and 1 commit, got %+v", info)
	}
}

func TestDeleteScene(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	if status := do(t, ts, "DELETE", "/api/scenes/"+id, nil, nil); status != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", status)
	}
	if status := do(t, ts, "DELETE", "/api/scenes/"+id, nil, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", status)
	}
	if status := do(t, ts, "POST", "/api/scenes/"+id+"/distance", PointsRequest{}, nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 for deleted scene, got %d", status)
	}
}

func TestErrorStatus(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		expected int
	}{
		{"unknown scene", "POST", "/api/scenes/nope/distance", PointsRequest{}, http.StatusNotFound},
		{"malformed json", "POST", "/api/scenes/" + id + "/distance", "{", http.StatusBadRequest},
		{"wrong row width", "POST", "/api/scenes/" + id + "/distance", `{"points": [[1, 2]]}`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/scenes/" + id + "/distance", `{"pts": []}`, http.StatusBadRequest},
		{"bad mode", "POST", "/api/scenes/" + id + "/cast-rays", RaysRequest{Mode: "sideways"}, http.StatusBadRequest},
		{"unknown primitive", "POST", "/api/scenes", GeometryRequest{Primitive: "teapot"}, http.StatusBadRequest},
		{"index out of range", "POST", "/api/scenes/" + id + "/geometries",
			GeometryRequest{Vertices: [][3]float32{{0, 0, 0}}, Triangles: [][3]uint32{{0, 0, 3}}}, http.StatusBadRequest},
		{"body too large", "POST", "/api/scenes/" + id + "/distance",
			`{"points": [` + strings.Repeat("[0,0,0],", 9000) + `[0,0,0]]}`, http.StatusRequestEntityTooLarge},
		{"wrong method", "GET", "/api/scenes/" + id + "/distance", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := do(t, ts, tt.method, tt.path, tt.body, nil); status != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, status)
			}
		})
	}
}

func TestSceneLimit(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 4; i++ {
		createBoxScene(t, ts)
	}
	if status := do(t, ts, "POST", "/api/scenes", GeometryRequest{Primitive: "box"}, nil); status != http.StatusTooManyRequests {
		t.Errorf("Expected 429 past the scene limit, got %d", status)
	}
}

func TestConcurrentQueries(t *testing.T) {
	ts := newTestServer(t)
	id := createBoxScene(t, ts)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(PointsRequest{Points: [][]float32{{0, 0, 2}}})
			resp, err := ts.Client().Post(ts.URL+"/api/scenes/"+id+"/distance", "application/json", bytes.NewReader(body))
			if err != nil {
				errs <- err.Error()
				return
			}
			defer resp.Body.Close()
			var out struct {
				Values []float64 `json:"values"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Values) != 1 || out.Values[0] != 1.5 {
				errs <- "unexpected response"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	var info SceneInfo
	do(t, ts, "GET", "/api/scenes/"+id, nil, &info)
	if info.Commits != 1 {
		t.Errorf("Expected a single build across concurrent queries, got %d", info.Commits)
	}
}

func TestDeleteSceneReleasesWorkers(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Raycast.Workers = 8
	})

	// Warm the keep-alive connection so it is part of the baseline
	do(t, ts, "GET", "/api/health", nil, nil)
	before := runtime.NumGoroutine()

	for round := 0; round < 5; round++ {
		var ids []string
		for i := 0; i < 4; i++ {
			ids = append(ids, createBoxScene(t, ts))
		}
		// Rejected past the limit without building a scene
		if status := do(t, ts, "POST", "/api/scenes", GeometryRequest{Primitive: "box"}, nil); status != http.StatusTooManyRequests {
			t.Fatalf("Expected 429, got %d", status)
		}
		for _, id := range ids {
			if status := do(t, ts, "DELETE", "/api/scenes/"+id, nil, nil); status != http.StatusNoContent {
				t.Fatalf("Expected 204, got %d", status)
			}
		}
	}

	// Twenty scenes of eight workers each would leave 160 goroutines behind
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("Expected goroutines near %d after create and delete, got %d", before, after)
	}
}

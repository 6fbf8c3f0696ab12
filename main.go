package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/df07/go-raycasting-scene/pkg/config"
	"github.com/df07/go-raycasting-scene/pkg/loaders"
	"github.com/df07/go-raycasting-scene/pkg/logger"
	"github.com/df07/go-raycasting-scene/pkg/mesh"
	"github.com/df07/go-raycasting-scene/pkg/raycast"
	"github.com/df07/go-raycasting-scene/pkg/tensor"
	"go.uber.org/zap"
)

// queries maps each -query value to the width of its input records
var queries = map[string]int{
	"cast":            6,
	"cast-segment":    6,
	"count":           6,
	"closest":         3,
	"distance":        3,
	"signed-distance": 3,
	"occupancy":       3,
}

type options struct {
	configPath string
	meshPath   string
	primitive  string
	query      string
	input      string
	logLevel   string
	logFile    string
	workers    int
	batchSize  int
	help       bool
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one query against a single-geometry scene and prints one row per input record
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("raycast", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&opts.meshPath, "mesh", "", "PLY mesh to load")
	fs.StringVar(&opts.primitive, "primitive", "", "Built-in shape: "+strings.Join(mesh.PrimitiveNames, ", ")+" (default box)")
	fs.StringVar(&opts.query, "query", "distance", "Query: cast, cast-segment, count, closest, distance, signed-distance, occupancy")
	fs.StringVar(&opts.input, "input", "-", "Record file, '-' for stdin")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFile, "log-file", "", "Rotated log file")
	fs.IntVar(&opts.workers, "workers", 0, "Traversal workers (0 = all CPUs)")
	fs.IntVar(&opts.batchSize, "max-batch-size", 0, "Rays or points per provider call")
	fs.BoolVar(&opts.help, "help", false, "Show help information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.help {
		printHelp(fs, stdout)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(fs, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, logFileConfig(cfg), stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	width, ok := queries[opts.query]
	if !ok {
		return fmt.Errorf("unknown query %q", opts.query)
	}

	values, err := readInput(opts.input, stdin, width)
	if err != nil {
		return err
	}

	scene, err := createScene(cfg, opts.meshPath, opts.primitive, log)
	if err != nil {
		return err
	}
	defer scene.Close()

	startTime := time.Now()
	rows, err := runQuery(scene, opts.query, values, width)
	if err != nil {
		return err
	}
	log.Info("query completed",
		zap.String("query", opts.query),
		zap.Int("records", len(rows)),
		zap.Duration("elapsed", time.Since(startTime)))

	for _, row := range rows {
		if _, err := fmt.Fprintln(stdout, row); err != nil {
			return err
		}
	}
	return nil
}

func printHelp(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Raycasting Scene")
	fmt.Fprintln(w, "Usage: raycast [options] < records")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input records:")
	fmt.Fprintln(w, "  cast, cast-segment, count   ox oy oz dx dy dz")
	fmt.Fprintln(w, "  closest, distance, ...      x y z")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output rows:")
	fmt.Fprintln(w, "  cast      t_hit geometry_id primitive_id u v nx ny nz")
	fmt.Fprintln(w, "  count     crossings")
	fmt.Fprintln(w, "  closest   x y z geometry_id primitive_id")
	fmt.Fprintln(w, "  others    value")
}

// applyFlags overrides config values with explicitly set flags
func applyFlags(fs *flag.FlagSet, opts *options, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.Logging.Level = opts.logLevel
		case "log-file":
			cfg.Logging.LogFile = opts.logFile
		case "workers":
			cfg.Raycast.Workers = opts.workers
		case "max-batch-size":
			cfg.Raycast.MaxBatchSize = opts.batchSize
		}
	})
}

func logFileConfig(cfg *config.Config) logger.FileConfig {
	if cfg.Logging.LogFile == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(cfg.Logging.LogFile)
}

func readInput(path string, stdin io.Reader, width int) ([]float32, error) {
	if path == "-" || path == "" {
		return loaders.ReadRecords(stdin, width)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()
	return loaders.ReadRecords(file, width)
}

// createScene registers either a PLY mesh or a built-in primitive
func createScene(cfg *config.Config, meshPath, primitive string, log *zap.Logger) (*raycast.Scene, error) {
	if meshPath != "" && primitive != "" {
		return nil, errors.New("-mesh and -primitive are mutually exclusive")
	}

	var m *mesh.Mesh
	var err error
	if meshPath != "" {
		m, err = loaders.LoadPLY(meshPath)
	} else {
		if primitive == "" {
			primitive = "box"
		}
		m, err = mesh.NewPrimitive(primitive, mesh.DefaultCells)
	}
	if err != nil {
		return nil, err
	}

	scene := raycast.NewScene(
		raycast.WithMaxBatchSize(cfg.Raycast.MaxBatchSize),
		raycast.WithWorkers(cfg.Raycast.Workers),
		raycast.WithLogger(log),
	)
	if _, err := scene.AddTriangleMesh(m); err != nil {
		scene.Close()
		return nil, err
	}
	log.Debug("scene created",
		zap.Int("vertices", m.VertexCount()),
		zap.Int("triangles", m.TriangleCount()))
	return scene, nil
}

// runQuery evaluates one query over flattened records of the given width
func runQuery(scene *raycast.Scene, query string, values []float32, width int) ([]string, error) {
	n := len(values) / width
	input, err := tensor.FromFloat32(values, n, width)
	if err != nil {
		return nil, err
	}

	rows := make([]string, n)
	switch query {
	case "cast", "cast-segment":
		mode := raycast.Unbounded
		if query == "cast-segment" {
			mode = raycast.Segment
		}
		result, err := scene.CastRays(input, mode)
		if err != nil {
			return nil, err
		}
		t, geom, prim := result.THit.Float32s(), result.GeometryIDs.Uint32s(), result.PrimitiveIDs.Uint32s()
		uv, normals := result.PrimitiveUVs.Float32s(), result.PrimitiveNormals.Float32s()
		for i := range rows {
			rows[i] = fmt.Sprintf("%s %d %d %s", formatFloat(t[i]), geom[i], prim[i],
				formatFloats(append(uv[2*i:2*i+2:2*i+2], normals[3*i:3*i+3]...)))
		}

	case "count":
		counts, err := scene.CountIntersections(input)
		if err != nil {
			return nil, err
		}
		for i, c := range counts.Int32s() {
			rows[i] = strconv.Itoa(int(c))
		}

	case "closest":
		result, err := scene.ComputeClosestPoints(input)
		if err != nil {
			return nil, err
		}
		points, geom, prim := result.Points.Float32s(), result.GeometryIDs.Uint32s(), result.PrimitiveIDs.Uint32s()
		for i := range rows {
			rows[i] = fmt.Sprintf("%s %d %d", formatFloats(points[3*i:3*i+3]), geom[i], prim[i])
		}

	case "distance", "signed-distance", "occupancy":
		var out *tensor.Tensor
		switch query {
		case "distance":
			out, err = scene.ComputeDistance(input)
		case "signed-distance":
			out, err = scene.ComputeSignedDistance(input)
		default:
			out, err = scene.ComputeOccupancy(input)
		}
		if err != nil {
			return nil, err
		}
		for i, v := range out.Float32s() {
			rows[i] = formatFloat(v)
		}

	default:
		return nil, fmt.Errorf("unknown query %q", query)
	}
	return rows, nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func formatFloats(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

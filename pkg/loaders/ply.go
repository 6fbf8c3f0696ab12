package loaders

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/df07/go-raycasting-scene/pkg/mesh"
)

// PLY formats
const (
	FormatASCII        = "ascii"
	FormatBinaryLittle = "binary_little_endian"
	FormatBinaryBig    = "binary_big_endian"
)

// PLYHeader represents the parsed header information from a PLY file
type PLYHeader struct {
	Format   string // "binary_little_endian", "binary_big_endian", or "ascii"
	Version  string // Usually "1.0"
	Elements []PLYElement
}

// PLYElement is one element block declared in the header, in file order
type PLYElement struct {
	Name  string
	Count int
	Props []PLYProperty
}

// PLYProperty represents a property definition in the PLY header
type PLYProperty struct {
	Name     string
	Type     string
	IsList   bool
	ListType string // For list properties, the type of the count
	DataType string // For list properties, the type of the data
}

// LoadPLY loads a PLY file as a triangle mesh
func LoadPLY(filename string) (*mesh.Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PLY file: %w", err)
	}
	defer file.Close()

	m, err := ReadPLY(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

// ReadPLY reads a PLY stream. Vertex positions come from the x, y and z
// properties; faces come from the vertex_indices (or vertex_index) list and
// polygons are fan triangulated. Every other element and property is skipped.
func ReadPLY(r io.Reader) (*mesh.Mesh, error) {
	reader := bufio.NewReaderSize(r, 1024*1024)

	header, err := parsePLYHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PLY header: %w", err)
	}

	var values plyValueReader
	switch header.Format {
	case FormatASCII:
		values = newASCIIValueReader(reader)
	case FormatBinaryLittle:
		values = &binaryValueReader{reader: reader, order: binary.LittleEndian}
	case FormatBinaryBig:
		values = &binaryValueReader{reader: reader, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("unsupported PLY format: %s", header.Format)
	}

	m := &mesh.Mesh{}
	for _, element := range header.Elements {
		switch element.Name {
		case "vertex":
			err = readVertices(values, element, m)
		case "face":
			err = readFaces(values, element, m)
		default:
			err = skipElement(values, element)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read PLY %s data: %w", element.Name, err)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parsePLYHeader parses the header up to and including end_header
func parsePLYHeader(reader *bufio.Reader) (*PLYHeader, error) {
	header := &PLYHeader{}
	var current *PLYElement

	first := true
	for {
		raw, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("error reading header: %w", err)
		}
		line := strings.TrimSpace(raw)

		if first {
			if line != "ply" {
				return nil, fmt.Errorf("missing ply magic number")
			}
			first = false
			continue
		}
		if line == "end_header" {
			break
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "format":
			if len(parts) >= 3 {
				header.Format = parts[1]
				header.Version = parts[2]
			}
		case "comment", "obj_info":
			// Ignore comments
		case "element":
			if len(parts) < 3 {
				return nil, fmt.Errorf("invalid element definition: %s", line)
			}
			count, err := strconv.Atoi(parts[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("invalid element count: %s", parts[2])
			}
			header.Elements = append(header.Elements, PLYElement{Name: parts[1], Count: count})
			current = &header.Elements[len(header.Elements)-1]
		case "property":
			if current == nil {
				return nil, fmt.Errorf("property declared before any element")
			}
			prop, err := parsePLYProperty(parts[1:])
			if err != nil {
				return nil, fmt.Errorf("failed to parse property: %w", err)
			}
			current.Props = append(current.Props, prop)
		default:
			return nil, fmt.Errorf("unknown header keyword: %s", parts[0])
		}
	}

	if header.Format == "" {
		return nil, fmt.Errorf("missing format line")
	}
	return header, nil
}

// parsePLYProperty parses a property line from the PLY header
func parsePLYProperty(parts []string) (PLYProperty, error) {
	if len(parts) < 2 {
		return PLYProperty{}, fmt.Errorf("invalid property definition")
	}

	prop := PLYProperty{}

	if parts[0] == "list" {
		if len(parts) < 4 {
			return PLYProperty{}, fmt.Errorf("invalid list property definition")
		}
		prop.IsList = true
		prop.ListType = parts[1]
		prop.DataType = parts[2]
		prop.Name = parts[3]
		if getTypeSize(prop.ListType) == 0 || getTypeSize(prop.DataType) == 0 {
			return PLYProperty{}, fmt.Errorf("unsupported list types: %s %s", prop.ListType, prop.DataType)
		}
	} else {
		prop.Type = parts[0]
		prop.Name = parts[1]
		if getTypeSize(prop.Type) == 0 {
			return PLYProperty{}, fmt.Errorf("unsupported data type: %s", prop.Type)
		}
	}

	return prop, nil
}

// maxPrealloc bounds the elements reserved from a header count; larger meshes grow by append
const maxPrealloc = 1 << 20

func readVertices(values plyValueReader, element PLYElement, m *mesh.Mesh) error {
	axis := map[string]int{"x": 0, "y": 1, "z": 2}
	found := 0
	for _, prop := range element.Props {
		if _, ok := axis[prop.Name]; ok && !prop.IsList {
			found++
		}
	}
	if found != 3 {
		return fmt.Errorf("vertex element needs x, y and z properties")
	}

	m.Vertices = make([]float32, 0, 3*min(element.Count, maxPrealloc))
	for i := 0; i < element.Count; i++ {
		var position [3]float32
		for _, prop := range element.Props {
			a, isAxis := axis[prop.Name]
			if prop.IsList || !isAxis {
				if err := skipProperty(values, prop); err != nil {
					return fmt.Errorf("vertex %d property %s: %w", i, prop.Name, err)
				}
				continue
			}
			v, err := values.read(prop.Type)
			if err != nil {
				return fmt.Errorf("vertex %d property %s: %w", i, prop.Name, err)
			}
			position[a] = float32(v)
		}
		m.Vertices = append(m.Vertices, position[0], position[1], position[2])
	}
	return nil
}

func readFaces(values plyValueReader, element PLYElement, m *mesh.Mesh) error {
	m.Triangles = make([]uint32, 0, 3*min(element.Count, maxPrealloc))
	var polygon []uint32
	for i := 0; i < element.Count; i++ {
		for _, prop := range element.Props {
			if !prop.IsList || (prop.Name != "vertex_indices" && prop.Name != "vertex_index") {
				if err := skipProperty(values, prop); err != nil {
					return fmt.Errorf("face %d property %s: %w", i, prop.Name, err)
				}
				continue
			}

			count, err := readListCount(values, prop)
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			polygon = polygon[:0]
			for j := 0; j < count; j++ {
				v, err := values.read(prop.DataType)
				if err != nil {
					return fmt.Errorf("face %d index %d: %w", i, j, err)
				}
				if v < 0 || v > math.MaxUint32 {
					return fmt.Errorf("face %d has invalid vertex index %v", i, v)
				}
				polygon = append(polygon, uint32(v))
			}

			// Fan triangulation; faces with fewer than three vertices carry no area.
			for k := 1; k+1 < len(polygon); k++ {
				m.Triangles = append(m.Triangles, polygon[0], polygon[k], polygon[k+1])
			}
		}
	}
	return nil
}

func skipElement(values plyValueReader, element PLYElement) error {
	for i := 0; i < element.Count; i++ {
		for _, prop := range element.Props {
			if err := skipProperty(values, prop); err != nil {
				return fmt.Errorf("%s %d property %s: %w", element.Name, i, prop.Name, err)
			}
		}
	}
	return nil
}

func readListCount(values plyValueReader, prop PLYProperty) (int, error) {
	v, err := values.read(prop.ListType)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative list count %v", v)
	}
	return int(v), nil
}

// skipProperty skips a property in the data stream
func skipProperty(values plyValueReader, prop PLYProperty) error {
	if prop.IsList {
		count, err := readListCount(values, prop)
		if err != nil {
			return err
		}
		for i := 0; i < count; i++ {
			if _, err := values.read(prop.DataType); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := values.read(prop.Type)
	return err
}

// getTypeSize returns the size in bytes of a PLY data type, or 0 if unknown
func getTypeSize(dataType string) int {
	switch dataType {
	case "float", "float32", "int", "int32", "uint", "uint32":
		return 4
	case "double", "float64":
		return 8
	case "short", "int16", "ushort", "uint16":
		return 2
	case "char", "int8", "uchar", "uint8":
		return 1
	default:
		return 0
	}
}

// plyValueReader reads one scalar of the given PLY type as float64
type plyValueReader interface {
	read(dataType string) (float64, error)
}

type asciiValueReader struct {
	scanner *bufio.Scanner
}

func newASCIIValueReader(r io.Reader) *asciiValueReader {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	return &asciiValueReader{scanner: scanner}
}

func (a *asciiValueReader) read(dataType string) (float64, error) {
	if !a.scanner.Scan() {
		if err := a.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	v, err := strconv.ParseFloat(a.scanner.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", dataType, a.scanner.Text())
	}
	return v, nil
}

type binaryValueReader struct {
	reader *bufio.Reader
	order  binary.ByteOrder
	buf    [8]byte
}

func (b *binaryValueReader) read(dataType string) (float64, error) {
	size := getTypeSize(dataType)
	if size == 0 {
		return 0, fmt.Errorf("unsupported data type: %s", dataType)
	}
	data := b.buf[:size]
	if _, err := io.ReadFull(b.reader, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	switch dataType {
	case "float", "float32":
		return float64(math.Float32frombits(b.order.Uint32(data))), nil
	case "double", "float64":
		return math.Float64frombits(b.order.Uint64(data)), nil
	case "int", "int32":
		return float64(int32(b.order.Uint32(data))), nil
	case "uint", "uint32":
		return float64(b.order.Uint32(data)), nil
	case "short", "int16":
		return float64(int16(b.order.Uint16(data))), nil
	case "ushort", "uint16":
		return float64(b.order.Uint16(data)), nil
	case "char", "int8":
		return float64(int8(data[0])), nil
	default: // "uchar", "uint8"
		return float64(data[0]), nil
	}
}

// WritePLY writes m as a PLY stream in the given format with float vertices
// and uint32 face indices
func WritePLY(w io.Writer, m *mesh.Mesh, format string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var order binary.AppendByteOrder
	switch format {
	case FormatASCII:
	case FormatBinaryLittle:
		order = binary.LittleEndian
	case FormatBinaryBig:
		order = binary.BigEndian
	default:
		return fmt.Errorf("unsupported PLY format: %s", format)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", format)
	fmt.Fprintf(bw, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", m.VertexCount())
	fmt.Fprintf(bw, "element face %d\nproperty list uchar uint vertex_indices\nend_header\n", m.TriangleCount())

	if order == nil {
		for i := 0; i < m.VertexCount(); i++ {
			v := m.Vertices[3*i : 3*i+3]
			fmt.Fprintf(bw, "%s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
		}
		for i := 0; i < m.TriangleCount(); i++ {
			t := m.Triangles[3*i : 3*i+3]
			fmt.Fprintf(bw, "3 %d %d %d\n", t[0], t[1], t[2])
		}
		return bw.Flush()
	}

	buf := make([]byte, 0, 13)
	for _, v := range m.Vertices {
		buf = order.AppendUint32(buf[:0], math.Float32bits(v))
		bw.Write(buf)
	}
	for i := 0; i < m.TriangleCount(); i++ {
		buf = append(buf[:0], 3)
		for _, idx := range m.Triangles[3*i : 3*i+3] {
			buf = order.AppendUint32(buf, idx)
		}
		bw.Write(buf)
	}
	return bw.Flush()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

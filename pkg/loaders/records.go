package loaders

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadRecords reads rows of exactly width numbers separated by whitespace or
// commas. Blank lines and text after '#' are ignored. The values are returned
// flattened in row order.
func ReadRecords(r io.Reader, width int) ([]float32, error) {
	if width <= 0 {
		return nil, fmt.Errorf("record width must be positive, got %d", width)
	}

	var values []float32
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}
		if len(fields) != width {
			return nil, fmt.Errorf("line %d: expected %d values, got %d", lineNum, width, len(fields))
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q", lineNum, field)
			}
			values = append(values, float32(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return values, nil
}

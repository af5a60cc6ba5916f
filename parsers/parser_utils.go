package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrInvalidCSV marks a file whose header cannot be used for an import.
var ErrInvalidCSV = errors.New("invalid csv")

// DecodeUTF returns a reader yielding UTF-8. A UTF-8 BOM is dropped and a
// UTF-16 BOM switches decoding to that encoding; input without a BOM is read
// as UTF-8.
func DecodeUTF(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// newCSVReader reads the header row and checks that every required column is present.
func newCSVReader(r io.Reader, required []string) (*csv.Reader, map[string]int, error) {
	reader := csv.NewReader(DecodeUTF(r))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: file is empty", ErrInvalidCSV)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unreadable header: %v", ErrInvalidCSV, err)
	}

	colIndex, err := getColIndex(header, required)
	if err != nil {
		return nil, nil, err
	}
	// rows may carry fewer columns than the header
	reader.FieldsPerRecord = -1
	return reader, colIndex, nil
}

// getColIndex maps header names (lowercased) to their column index.
func getColIndex(header []string, required []string) (map[string]int, error) {
	colIndex := make(map[string]int)
	for i, colName := range header {
		colIndex[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("%w: required header not found: %s", ErrInvalidCSV, req)
		}
	}
	return colIndex, nil
}

func getter(colIndex map[string]int, rec []string) func(string) string {
	return func(key string) string {
		if idx, ok := colIndex[key]; ok && idx < len(rec) {
			return strings.TrimSpace(rec[idx])
		}
		return ""
	}
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "active":
		return true
	case "0", "false", "no", "n", "inactive":
		return false
	}
	return def
}

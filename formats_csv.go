package geoartifacts

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/andreiashu/geoartifacts/geotable"
)

// csvOptions controls how delimited text files are read.
type csvOptions struct {
	Comma        rune
	Latin1       bool // input is ISO-8859-1 rather than UTF-8
	SkipLines    int  // preamble lines before the header row
	DecimalComma bool // numbers use ',' as the decimal separator
}

// textReader wraps r so that it yields UTF-8.
func textReader(r io.Reader, latin1 bool) io.Reader {
	if latin1 {
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
	return r
}

// readCSV returns the header row and the records of a delimited file.
func readCSV(r io.Reader, opts csvOptions) ([]string, [][]string, error) {
	br := bufio.NewReader(textReader(r, opts.Latin1))
	if _, err := readLines(br, opts.SkipLines); err != nil {
		return nil, nil, err
	}
	return readDelimited(br, opts.Comma)
}

// readLines consumes n lines from br and returns them without line endings.
func readLines(br *bufio.Reader, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return nil, fmt.Errorf("reading preamble line %d: %w", i+1, err)
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, nil
}

// readDelimited reads a header row and the records after it. Records
// shorter than the header are padded with empty cells, longer ones cut.
func readDelimited(r io.Reader, comma rune) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		records = append(records, rec[:len(header)])
	}
	return header, records, nil
}

// loadCSV loads a delimited file into a table without geometry. Column kinds
// are inferred from the cells; empty cells are missing.
func loadCSV(path string, opts csvOptions) (*geotable.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, records, err := readCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("reading csv %s: %w", path, err)
	}
	builders := make([]*columnBuilder, len(header))
	for i, h := range header {
		builders[i] = newColumnBuilder(h, len(records))
	}
	for _, rec := range records {
		for i := range header {
			builders[i].add(parseCell(rec[i], opts.DecimalComma))
		}
	}
	return geotable.New(geotable.Rows(len(records)), buildColumns(builders)...)
}

// parseCell converts a text cell to int64, float64, string or nil.
func parseCell(s string, decimalComma bool) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	num := s
	if decimalComma {
		num = strings.Replace(s, ",", ".", 1)
	}
	if f, err := strconv.ParseFloat(num, 64); err == nil {
		return f
	}
	return s
}

// loadJSONRecords loads a JSON array of flat objects. Keys across all
// objects become columns in sorted order. Numbers load as floats, strings
// stay strings, and null or absent keys are missing.
func loadJSONRecords(path string) (*geotable.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding json %s: %w", path, err)
	}

	keys := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			keys[k] = true
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	builders := make([]*columnBuilder, len(names))
	for i, n := range names {
		builders[i] = newColumnBuilder(n, len(records))
	}
	for _, rec := range records {
		for i, n := range names {
			builders[i].add(jsonValue(rec[n]))
		}
	}
	return geotable.New(geotable.Rows(len(records)), buildColumns(builders)...)
}

// jsonValue maps a decoded JSON value onto the kinds columnBuilder knows.
// Nested objects and arrays are kept as their JSON text.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil, string, float64:
		return x
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

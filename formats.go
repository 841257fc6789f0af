package geoartifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/andreiashu/geoartifacts/geotable"
)

// formatExtensions lists the file extensions accepted for each format, in
// order of preference.
var formatExtensions = map[Format][]string{
	FormatGeoPackage: {".gpkg"},
	FormatShapefile:  {".shp"},
	FormatGeoTIFF:    {".tif", ".tiff"},
	FormatGeoJSON:    {".geojson", ".json"},
	FormatCSV:        {".csv"},
	FormatJSON:       {".json"},
}

// LoadFile loads a local file, choosing the loader from its extension.
// GeoPackages are read from their first feature layer.
func LoadFile(path string) (*geotable.Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range []Format{FormatGeoPackage, FormatShapefile, FormatGeoTIFF, FormatGeoJSON, FormatCSV} {
		for _, e := range formatExtensions[f] {
			if e == ext {
				return loadPath(path, f, 0)
			}
		}
	}
	return nil, &InvalidArgumentError{Selector: "file", Value: path, Message: "unsupported extension"}
}

// loadPath loads path with the loader for f. When path is a directory (an
// unpacked archive) the file to load is picked by extension.
func loadPath(path string, f Format, layer int) (*geotable.Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if path, err = pickFile(path, formatExtensions[f]...); err != nil {
			return nil, err
		}
	}
	switch f {
	case FormatGeoPackage:
		return loadGeoPackage(path, layer)
	case FormatShapefile:
		return loadShapefile(path)
	case FormatGeoTIFF:
		return loadGeoTIFF(path)
	case FormatGeoJSON:
		return loadGeoJSON(path)
	case FormatCSV:
		return loadCSV(path, csvOptions{Comma: ','})
	case FormatJSON:
		return loadJSONRecords(path)
	default:
		return nil, fmt.Errorf("no loader for format %s", f)
	}
}

// pickFile returns the first file below dir (sorted by path) whose extension
// is in exts, trying extensions in order.
func pickFile(dir string, exts ...string) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)
	for _, ext := range exts {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f, nil
			}
		}
	}
	return "", &NotFoundError{Resource: "file", Query: fmt.Sprintf("%s in %s", strings.Join(exts, "|"), dir)}
}

// columnBuilder accumulates raw values for one column and infers its kind:
// all integers → Int64Column, all numbers → Float64Column, else StringColumn.
type columnBuilder struct {
	name   string
	values []any
}

func newColumnBuilder(name string, capacity int) *columnBuilder {
	return &columnBuilder{name: name, values: make([]any, 0, capacity)}
}

func (b *columnBuilder) add(v any) {
	b.values = append(b.values, v)
}

func (b *columnBuilder) build() geotable.Column {
	allInt, allNum := true, true
	for _, v := range b.values {
		switch v.(type) {
		case nil:
		case int64:
		case float64:
			allInt = false
		default:
			allInt, allNum = false, false
		}
	}

	n := len(b.values)
	missing := make([]bool, n)
	switch {
	case allInt:
		vals := make([]int64, n)
		for i, v := range b.values {
			if v == nil {
				missing[i] = true
				continue
			}
			vals[i] = v.(int64)
		}
		return geotable.NewInt64Column(b.name, vals, missing)
	case allNum:
		vals := make([]float64, n)
		for i, v := range b.values {
			switch x := v.(type) {
			case int64:
				vals[i] = float64(x)
			case float64:
				vals[i] = x
			default:
				missing[i] = true
			}
		}
		return geotable.NewFloat64Column(b.name, vals, missing)
	default:
		vals := make([]string, n)
		for i, v := range b.values {
			if v == nil {
				missing[i] = true
				continue
			}
			vals[i] = textOf(v)
		}
		return geotable.NewStringColumn(b.name, vals, missing)
	}
}

func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func buildColumns(builders []*columnBuilder) []geotable.Column {
	cols := make([]geotable.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.build()
	}
	return cols
}

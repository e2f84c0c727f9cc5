// Package export projects validated invoice records onto output schemas and writes them.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// Schema is an ordered list of output column headers read from a template file.
type Schema struct {
	Name    string
	Columns []string
	Source  string
}

// SchemaName derives the schema name from a template path: the base name without extension
// and without a trailing "_template".
func SchemaName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_template")
}

// LoadSchema reads the header row of a .csv template or of the first sheet of a .xlsx template.
func LoadSchema(path string) (Schema, error) {
	var (
		cols []string
		err  error
	)
	switch ext := constants.NormalizeExt(filepath.Ext(path)); ext {
	case "csv":
		cols, err = csvHeader(path)
	case "xlsx":
		cols, err = xlsxHeader(path)
	default:
		return Schema{}, common.ConfigErrorf("template %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return Schema{}, common.NewConfigError("template "+path, err)
	}

	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	for len(cols) > 0 && cols[len(cols)-1] == "" {
		cols = cols[:len(cols)-1]
	}
	if len(cols) == 0 {
		return Schema{}, common.ConfigErrorf("template %s: header row is empty", path)
	}
	return Schema{Name: SchemaName(path), Columns: cols, Source: path}, nil
}

// LoadSchemas loads every template; duplicate schema names are rejected because their
// outputs would overwrite each other.
func LoadSchemas(paths []string) ([]Schema, error) {
	if len(paths) == 0 {
		return nil, common.ConfigErrorf("no output templates configured")
	}
	out := make([]Schema, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadSchema(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, common.ConfigErrorf("templates %s and %s both define schema %q", prev, p, s.Name)
		}
		seen[s.Name] = p
		out = append(out, s)
	}
	return out, nil
}

func csvHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}

func xlsxHeader(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Error()
	}
	return rows.Columns()
}

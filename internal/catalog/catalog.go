// Package catalog holds the controlled vocabularies (allowed accounts and projects)
// that extracted invoice fields are validated against.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// sourceSchema is the shape of a field mapping file.
const sourceSchema = `{
  "type": "object",
  "required": ["accounts", "projects"],
  "properties": {
    "accounts": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "projects": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
  }
}`

// Catalog is an immutable mapping from category name to its ordered allowed values.
// It is safe for concurrent use; nothing mutates it after Parse returns.
type Catalog struct {
	categories map[string][]string
}

// Load reads and validates a field mapping file. Any failure is a CONFIG_ERROR.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewConfigError("read field mappings "+path, err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, common.NewConfigError("field mappings "+path, err)
	}
	return c, nil
}

// Parse builds a Catalog from the JSON source. Unknown extra categories are kept.
func Parse(raw []byte) (*Catalog, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("field_mappings.json", strings.NewReader(sourceSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("field_mappings.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid field mappings: %w", err)
	}

	var src map[string]json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&src); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	c := &Catalog{categories: make(map[string][]string, len(src))}
	for name, body := range src {
		var values []string
		if err := json.Unmarshal(body, &values); err != nil {
			if slices.Contains(constants.CatalogCategories, name) {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			// not a value list; ignore extra keys that aren't vocabularies
			continue
		}
		c.categories[name] = dedupe(values)
	}
	for _, name := range constants.CatalogCategories {
		if len(c.categories[name]) == 0 {
			return nil, fmt.Errorf("category %q has no usable values", name)
		}
	}
	return c, nil
}

// New builds a catalog from in-memory lists, applying the same rules as Parse.
func New(accounts, projects []string) (*Catalog, error) {
	raw, err := json.Marshal(map[string][]string{
		constants.CategoryAccounts: accounts,
		constants.CategoryProjects: projects,
	})
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Values returns a copy of the allowed values of category, in source order.
func (c *Catalog) Values(category string) []string {
	return slices.Clone(c.categories[category])
}

// Accounts returns the allowed account values.
func (c *Catalog) Accounts() []string { return c.Values(constants.CategoryAccounts) }

// Projects returns the allowed project values.
func (c *Catalog) Projects() []string { return c.Values(constants.CategoryProjects) }

// Contains reports whether value is an allowed member of category. Matching is exact.
func (c *Catalog) Contains(category, value string) bool {
	return slices.Contains(c.categories[category], value)
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

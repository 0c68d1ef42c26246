// Package phasefile reads admin-authored phase configs from YAML or JSON files.
//
// Files are checked in two passes: a JSON Schema shape check (list of objects
// with a name) and then the domain validator, which owns all range rules.
package phasefile

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
	"github.com/auri-hub/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const schemaURL = "schema://phase-config.json"

// schemaDoc is deliberately loose on bounds: numeric strings, floats and
// nulls are all judged by the domain validator, not here.
const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name"],
    "properties": {
      "name": {"type": "string"},
      "level_min": {"type": ["integer", "number", "string", "null"]},
      "level_max": {"type": ["integer", "number", "string", "null"]},
      "description": {"type": "string"},
      "order": {"type": "integer"}
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaDoc))
		if err != nil {
			compileErr = fmt.Errorf("phasefile: parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("phasefile: add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

// Document is a decoded phase config file.
type Document struct {
	Path string

	// Digest is the hex BLAKE2b-256 of the file bytes.
	Digest string

	// Raw holds the entries as authored. Empty if the shape is wrong.
	Raw []phase.RawDefinition

	// SchemaErrors lists shape problems. When non-empty, Raw may be partial.
	SchemaErrors []string
}

// Validate runs the domain validator over the document.
func (d *Document) Validate() phase.ValidationResult {
	return phase.ValidateAndNormalize(d.Raw)
}

// Digest returns the hex BLAKE2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load reads and decodes the file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, shared.WrapError("phase", "LoadFile", shared.ErrServiceUnavailable, "cannot read phase config file", err)
	}
	doc, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Format is the encoding of a phase config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Document, error) {
	value, err := decode(data, format)
	if err != nil {
		return nil, shared.WrapError("phase", "ParseFile", shared.ErrInvalidFormat, "phase config file is not valid "+string(format), err)
	}

	doc := &Document{Digest: Digest(data)}

	s, err := schema()
	if err != nil {
		return nil, err
	}
	if verr := s.Validate(value); verr != nil {
		doc.SchemaErrors = schemaMessages(verr)
	}

	raw, err := phase.RawFromValue(value)
	if err != nil {
		doc.SchemaErrors = append(doc.SchemaErrors, err.Error())
		return doc, nil
	}
	doc.Raw = raw
	return doc, nil
}

func decode(data []byte, format Format) (any, error) {
	if format == FormatJSON {
		return jsonschema.UnmarshalJSON(bytes.NewReader(data))
	}

	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return normalizeYAML(value), nil
}

// normalizeYAML converts yaml.v3 output into the shapes JSON decoding yields,
// so the schema and the domain see one representation.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return json.Number(fmt.Sprint(x))
	case float64:
		return json.Number(fmt.Sprint(x))
	default:
		return v
	}
}

// schemaMessages flattens the validator's report into one line per leaf.
func schemaMessages(err error) []string {
	var out []string
	for i, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if i == 0 && strings.HasPrefix(line, "jsonschema") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// Source implements phase.Source over a file. The file is re-read on every
// call so edits apply without a restart; decoding is skipped while the
// digest is unchanged.
type Source struct {
	path string

	mu     sync.Mutex
	digest string
	raw    []phase.RawDefinition
}

// NewSource creates a file-backed source.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// GetRawPhaseConfig returns the file's entries. Shape errors are not load
// errors: the entries go to the validator, which rejects them.
func (s *Source) GetRawPhaseConfig(ctx context.Context) ([]phase.RawDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, shared.WrapError("phase", "LoadFile", shared.ErrServiceUnavailable, "cannot read phase config file", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := Digest(data)
	if digest == s.digest {
		return clone(s.raw), nil
	}

	doc, err := Parse(data, formatOf(s.path))
	if err != nil {
		return nil, err
	}
	if doc.Raw == nil && len(doc.SchemaErrors) > 0 {
		return nil, shared.WrapError("phase", "ParseFile", shared.ErrValidation,
			"phase config file has wrong shape", fmt.Errorf("%s", strings.Join(doc.SchemaErrors, "; ")))
	}

	s.digest = digest
	s.raw = doc.Raw
	return clone(doc.Raw), nil
}

func clone(in []phase.RawDefinition) []phase.RawDefinition {
	out := make([]phase.RawDefinition, len(in))
	copy(out, in)
	return out
}

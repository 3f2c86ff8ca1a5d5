package fetch

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sakif/gitviz/internal/apperror"
)

// Schema is a compiled JSON Schema for one API resource. Name doubles as the
// resource label in logs and metrics.
type Schema struct {
	Name   string
	schema *gojsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(name string, document []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("fetch: compiling schema %s: %w", name, err)
	}
	return &Schema{Name: name, schema: compiled}, nil
}

// MustCompileSchema is CompileSchema for schemas embedded at build time,
// where a compile error is a programming error.
func MustCompileSchema(name string, document []byte) *Schema {
	s, err := CompileSchema(name, document)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a JSON body against the schema. body must already be
// known to be valid JSON. The returned error names the first offending
// field path, e.g. "0.additions" or "id".
func (s *Schema) Validate(body []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperror.SchemaViolation("(root)", err.Error())
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	return apperror.SchemaViolation(first.Field(), first.Description())
}

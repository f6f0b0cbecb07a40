package reporter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"serverest/toolkit"
)

// SchemaSource returns the raw JSON Schema registered under name.
type SchemaSource func(name string) ([]byte, error)

// SchemaSet compiles named JSON Schemas on first use.
type SchemaSet struct {
	mu       sync.Mutex
	source   SchemaSource
	compiled map[string]*gojsonschema.Schema
}

func NewSchemaSet(source SchemaSource) *SchemaSet {
	return &SchemaSet{source: source, compiled: map[string]*gojsonschema.Schema{}}
}

func (s *SchemaSet) schema(name string) (*gojsonschema.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc, ok := s.compiled[name]; ok {
		return sc, nil
	}
	if s.source == nil {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	b, err := s.source(name)
	if err != nil {
		return nil, err
	}
	sc, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	s.compiled[name] = sc
	return sc, nil
}

// Validate returns an AssertionError listing every violation, or a plain
// error when the schema itself is unusable.
func (s *SchemaSet) Validate(name string, body []byte) error {
	sc, err := s.schema(name)
	if err != nil {
		return err
	}
	result, err := sc.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return failf(FailureResponseParse, "schema %s: body is not valid JSON: %v", name, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return failf(FailureSchema, "schema %s validation failed: %s; body: %s", name, strings.Join(msgs, "; "), toolkit.TruncateForLog(body, 500))
}

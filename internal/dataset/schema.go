package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/newthinker/btviz/internal/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed backtest.schema.json
var schemaJSON []byte

const schemaName = "backtest.schema.json"

// Schema validates every record of a backtest document
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles the embedded backtest schema
func CompileSchema() (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(schemaName)
	if err != nil {
		return nil, err
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks raw against the schema and reports the first offending field
func (s *Schema) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invalid("", "malformed JSON")
	}

	err := s.compiled.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return core.WrapError(core.ErrValidation, err)
	}
	leaf := deepest(verr)
	return invalid(pointerToField(leaf.InstanceLocation), "%s", leaf.Message)
}

// deepest follows the first cause chain down to the most specific failure
func deepest(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}

// pointerToField turns "/ohlc_history/3/etf_open" into "ohlc_history[3].etf_open"
func pointerToField(ptr string) string {
	var b strings.Builder
	for _, part := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		if part == "" {
			continue
		}
		part = strings.NewReplacer("~1", "/", "~0", "~").Replace(part)
		if _, err := strconv.Atoi(part); err == nil {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

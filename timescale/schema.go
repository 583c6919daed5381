package timescale

import (
	_ "embed"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/timeseries.json
var recordSchema []byte

// ErrSchemaViolation is returned when a record does not match the schema.
var ErrSchemaViolation = stderrors.New("record does not match schema")

// SchemaValidator checks record objects against the embedded record schema.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles the embedded schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks one record object, returning every violation in a single
// error.
func (v *SchemaValidator) Validate(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
}

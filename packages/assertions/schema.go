package assertions

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Envelope names a response shape the API promises.
type Envelope string

const (
	EnvelopeHealth Envelope = "health"
	EnvelopeAuth   Envelope = "auth"
	EnvelopeList   Envelope = "list"
	EnvelopeObject Envelope = "object"
)

var envelopeSchemas = map[Envelope]string{
	EnvelopeHealth: `{
		"type": "object",
		"required": ["status"],
		"properties": {"status": {"type": "string"}}
	}`,
	EnvelopeAuth: `{
		"type": "object",
		"required": ["data"],
		"properties": {
			"data": {
				"type": "object",
				"required": ["token"],
				"properties": {"token": {"type": "string", "minLength": 1}}
			}
		}
	}`,
	EnvelopeList: `{
		"type": "object",
		"required": ["data"],
		"properties": {"data": {"type": "array"}}
	}`,
	EnvelopeObject: `{
		"type": "object",
		"required": ["data"],
		"properties": {"data": {"type": "object"}}
	}`,
}

type Result struct {
	Passed   bool
	Envelope Envelope
	Errors   []string
}

// Message joins the violations into one line.
func (r *Result) Message() string {
	if r.Passed {
		return ""
	}
	return fmt.Sprintf("schema validation failed: %s", strings.Join(r.Errors, "; "))
}

// Validator holds compiled envelope schemas.
type Validator struct {
	schemas map[Envelope]*gojsonschema.Schema
}

// NewValidator compiles the built-in envelope schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[Envelope]*gojsonschema.Schema, len(envelopeSchemas))}
	for name, src := range envelopeSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// MustNewValidator is NewValidator for the built-in schemas, which always compile.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks body against the named envelope.
func (v *Validator) Validate(envelope Envelope, body []byte) *Result {
	schema, ok := v.schemas[envelope]
	if !ok {
		return &Result{Envelope: envelope, Errors: []string{fmt.Sprintf("unknown envelope %q", envelope)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &Result{Envelope: envelope, Errors: []string{fmt.Sprintf("schema validation error: %v", err)}}
	}

	if result.Valid() {
		return &Result{Passed: true, Envelope: envelope}
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return &Result{Envelope: envelope, Errors: errs}
}

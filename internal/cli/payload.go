package cli

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Structured payloads accepted on stdin/--json are validated against these
// schemas before they reach the service, so malformed requests are rejected
// with field-level messages instead of partial mutations.

const createPayloadSchema = `{
	"type": "object",
	"required": ["title"],
	"additionalProperties": false,
	"properties": {
		"title":         {"type": "string", "minLength": 1},
		"category":      {"type": "string"},
		"tags":          {"type": "array", "items": {"type": "string"}},
		"sources":       {"type": "array", "items": {"type": "string"}},
		"body":          {"type": "string"},
		"last_reviewed": {"type": "string"}
	}
}`

const updatePayloadSchema = `{
	"type": "object",
	"required": ["id"],
	"additionalProperties": false,
	"properties": {
		"id":            {"type": "string", "minLength": 1},
		"title":         {"type": "string", "minLength": 1},
		"category":      {"type": "string"},
		"tags":          {"type": "array", "items": {"type": "string"}},
		"sources":       {"type": "array", "items": {"type": "string"}},
		"body":          {"type": "string"},
		"last_reviewed": {"type": "string"}
	}
}`

var (
	createSchema = gojsonschema.NewStringLoader(createPayloadSchema)
	updateSchema = gojsonschema.NewStringLoader(updatePayloadSchema)
)

// validatePayload checks a JSON document against a schema and flattens the
// violations into one error.
func validatePayload(schema gojsonschema.JSONLoader, data []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

// ValidateCreatePayload validates a create request document.
func ValidateCreatePayload(data []byte) error {
	return validatePayload(createSchema, data)
}

// ValidateUpdatePayload validates an update request document.
func ValidateUpdatePayload(data []byte) error {
	return validatePayload(updateSchema, data)
}

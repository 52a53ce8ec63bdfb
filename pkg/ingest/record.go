package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/synmem/pkg/query"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidRecord is returned for spool files that are not valid records.
var ErrInvalidRecord = errors.New("ingest: invalid record")

// RecordSchema is the JSON Schema of one spool record, as written by the
// extraction collaborator.
const RecordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["content", "source"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string", "maxLength": 256},
    "content": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "source": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "content_type": {"type": "string", "maxLength": 64},
    "tags": {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true},
    "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

// RecordValidator checks spool records against RecordSchema.
type RecordValidator struct {
	schema *gojsonschema.Schema
}

// NewRecordValidator compiles RecordSchema.
func NewRecordValidator() (*RecordValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(RecordSchema))
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	return &RecordValidator{schema: schema}, nil
}

// Parse validates data and decodes it into store parameters.
func (v *RecordValidator) Parse(data []byte) (*query.StoreParams, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(msgs, "; "))
	}

	var params query.StoreParams
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &params, nil
}

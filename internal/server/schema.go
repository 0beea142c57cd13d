package server

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed merge_request.schema.json
var mergeRequestSchemaJSON []byte

var mergeRequestSchema = mustSchema(mergeRequestSchemaJSON)

func mustSchema(data []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return schema
}

// validateRequest checks a raw request body against the merge request schema
func validateRequest(body []byte) error {
	result, err := mergeRequestSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return fmt.Errorf("invalid request: %s", strings.Join(errs, "; "))
}

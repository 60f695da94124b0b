package config

import (
	_ "embed"
	"fmt"
	"sync"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Embed the schema file content directly into the compiled binary.
//
//go:embed strand_schema_v1.0.0.json
var schemaV1Bytes []byte

var (
	schemaV1Loader gojsonschema.JSONLoader
	schemaV1       *gojsonschema.Schema
	schemaOnce     sync.Once
	schemaErr      error
)

// loadSchema compiles the embedded schema exactly once.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = stranderrors.NewConfigError("embedded schema 'strand_schema_v1.0.0.json' is empty or not found (ensure file exists in internal/config/)", nil)
			return
		}
		schemaV1Loader = gojsonschema.NewBytesLoader(schemaV1Bytes)
		schemaV1, schemaErr = gojsonschema.NewSchema(schemaV1Loader)
		if schemaErr != nil {
			schemaErr = stranderrors.NewConfigError("failed to compile embedded schema 'strand_schema_v1.0.0.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema validates the given YAML document bytes against the
// embedded strand v1.0.0 schema, handling the YAML-to-JSON conversion the
// validator requires.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	// gojsonschema works on JSON-like Go structures, so parse the YAML into
	// a generic interface{} first. Strictness is handled by the struct
	// decoder, not here.
	var jsonData interface{}
	if err := yaml.Unmarshal(documentYAML, &jsonData); err != nil {
		return stranderrors.NewConfigError("failed to parse policy document YAML for schema validation", err)
	}

	docLoader := gojsonschema.NewGoLoader(jsonData)
	result, err := schema.Validate(docLoader)
	if err != nil {
		return stranderrors.NewConfigError("schema validation process failed", err)
	}

	if !result.Valid() {
		errMsg := "Policy document failed JSON schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return stranderrors.NewValidationError(errMsg, nil)
	}

	return nil
}

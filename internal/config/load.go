package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaVersionConstraint defines the SemVer major version loaded
// policy documents must satisfy. A v1 interpreter only accepts v1 documents.
const SupportedSchemaVersionConstraint = "v1"

// LoadDocument parses the given YAML bytes into a Document, validates it
// against the embedded JSON schema, checks schema version compatibility and
// performs logical validation.
func LoadDocument(documentYAML []byte, filePathHint string) (*Document, error) {
	if len(documentYAML) == 0 {
		return nil, stranderrors.NewConfigError("policy document content cannot be empty", nil)
	}

	// Step 1: Validate against the JSON Schema for basic structure and types.
	if err := ValidateWithSchema(documentYAML); err != nil {
		return nil, stranderrors.NewConfigError(fmt.Sprintf("policy document '%s' failed schema validation", filePathHint), err)
	}

	// Step 2: Unmarshal using strict decoding to catch unknown fields.
	var doc Document
	if err := yamlUnmarshalStrict(documentYAML, &doc); err != nil {
		return nil, stranderrors.NewConfigError(fmt.Sprintf("failed to parse policy document YAML '%s'", filePathHint), err)
	}
	doc.FilePath = filePathHint

	// Step 3: Check schema version compatibility.
	if doc.SchemaVersion == "" {
		return nil, stranderrors.NewValidationError(fmt.Sprintf("policy document '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	docSemVer := doc.SchemaVersion
	if !strings.HasPrefix(docSemVer, "v") {
		docSemVer = "v" + docSemVer
	}
	if !semver.IsValid(docSemVer) {
		return nil, stranderrors.NewValidationError(fmt.Sprintf("policy document '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, doc.SchemaVersion), nil)
	}
	if semver.Major(docSemVer) != SupportedSchemaVersionConstraint {
		return nil, stranderrors.NewValidationError(
			fmt.Sprintf("policy document '%s' schemaVersion '%s' is not compatible with interpreter requirement '%s'",
				filePathHint, doc.SchemaVersion, SupportedSchemaVersionConstraint),
			nil,
		)
	}

	// Step 4: Perform detailed logical validation on the Go struct.
	validationErrs := ValidateDocumentStructure(&doc)
	if len(validationErrs) > 0 {
		var errorMessages []string
		for _, vErr := range validationErrs {
			errorMessages = append(errorMessages, vErr.Error())
		}
		combinedMessage := fmt.Sprintf("policy document '%s' has %d validation error(s):\n- %s",
			filePathHint, len(errorMessages), strings.Join(errorMessages, "\n- "))
		return nil, stranderrors.NewValidationError(combinedMessage, validationErrs[0])
	}

	return &doc, nil
}

// LoadDocumentFromFile is a convenience function to read a policy document
// from disk.
func LoadDocumentFromFile(filePath string) (*Document, error) {
	if filePath == "" {
		return nil, stranderrors.NewConfigError("policy document file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, stranderrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, stranderrors.NewConfigError(fmt.Sprintf("failed to read policy document file '%s'", absPath), err)
	}
	return LoadDocument(yamlFile, absPath)
}

// yamlUnmarshalStrict disallows unknown fields so typos in policy documents
// surface as load errors instead of silently ignored configuration.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(in)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}

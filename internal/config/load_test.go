package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalDoc = `
schemaVersion: "1.0.0"
name: test-site
modules:
  - name: auth
    type: always
    config:
      rcode: ok
sections:
  authorize:
    - call: auth
`

func TestLoadDocumentMinimal(t *testing.T) {
	doc, err := LoadDocument([]byte(minimalDoc), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "test-site", doc.Name)
	assert.Equal(t, "test.yaml", doc.FilePath)
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, "always", doc.Modules[0].Type)
	require.Contains(t, doc.Sections, "authorize")
	assert.Equal(t, "auth", doc.Sections["authorize"][0].Call)
}

func TestLoadDocumentRejectsEmptyContent(t *testing.T) {
	_, err := LoadDocument(nil, "empty.yaml")
	assert.ErrorContains(t, err, "cannot be empty")
}

func TestLoadDocumentRejectsUnknownField(t *testing.T) {
	bad := `
schemaVersion: "1.0.0"
sections:
  authorize:
    - call: auth
unexpected_field: true
`
	_, err := LoadDocument([]byte(bad), "bad.yaml")
	assert.Error(t, err)
}

func TestLoadDocumentRejectsMissingSchemaVersion(t *testing.T) {
	bad := `
name: no-version
sections:
  authorize:
    - return: true
`
	_, err := LoadDocument([]byte(bad), "bad.yaml")
	assert.Error(t, err)
}

func TestLoadDocumentRejectsWrongMajorVersion(t *testing.T) {
	bad := `
schemaVersion: "2.0.0"
sections:
  authorize:
    - return: true
`
	_, err := LoadDocument([]byte(bad), "bad.yaml")
	assert.ErrorContains(t, err, "not compatible")
}

func TestLoadDocumentAcceptsVersionWithPrefix(t *testing.T) {
	good := `
schemaVersion: v1.2.0
sections:
  authorize:
    - return: true
`
	_, err := LoadDocument([]byte(good), "good.yaml")
	assert.NoError(t, err)
}

func TestValidateStatementDirectives(t *testing.T) {
	doc := &Document{
		Modules: []ModuleConfig{{Name: "auth", Type: "always"}},
		Sections: map[string][]Statement{
			"authorize": {
				{},                                  // no directive
				{Call: "auth", Return: true},        // two directives
				{Call: "nobody"},                    // undeclared module
				{Group: []Statement{{Break: true}}}, // break outside foreach
				{Elsif: `request["x"] == "y"`},      // elsif without if
			},
		},
	}
	errs := ValidateDocumentStructure(doc)
	require.Len(t, errs, 5)
	assert.ErrorContains(t, errs[0], "no directive")
	assert.ErrorContains(t, errs[1], "more than one directive")
	assert.ErrorContains(t, errs[2], "undeclared module instance")
	assert.ErrorContains(t, errs[3], "break outside of foreach")
	assert.ErrorContains(t, errs[4], "elsif does not follow")
}

func TestValidateRejectsDeepForeach(t *testing.T) {
	inner := []Statement{{Return: true}}
	for i := 0; i <= maxForeachNesting; i++ {
		inner = []Statement{{Foreach: &ForeachSpec{List: "request", Attr: "Class", Do: inner}}}
	}
	doc := &Document{Sections: map[string][]Statement{"authorize": inner}}
	errs := ValidateDocumentStructure(doc)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "foreach nesting exceeds")
}

func TestValidateActionOverrides(t *testing.T) {
	doc := &Document{
		Modules: []ModuleConfig{{Name: "auth", Type: "always"}},
		Sections: map[string][]Statement{
			"authorize": {{
				Call:    "auth",
				Actions: map[string]string{"ok": "return", "bogus": "1", "fail": "999"},
			}},
		},
	}
	errs := ValidateDocumentStructure(doc)
	require.Len(t, errs, 2)
}

func TestValidateRejectsDuplicateInstanceNames(t *testing.T) {
	doc := &Document{
		Modules: []ModuleConfig{
			{Name: "auth", Type: "always"},
			{Name: "auth", Type: "echo"},
		},
		Sections: map[string][]Statement{"authorize": {{Call: "auth"}}},
	}
	errs := ValidateDocumentStructure(doc)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "duplicate module instance name")
}

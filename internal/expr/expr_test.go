package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

func newTestRequest() *request.Request {
	req := request.New()
	req.Packet.Add("User-Name", "bob")
	req.Packet.Add("NAS-Port", 15)
	req.Reply.Add("Reply-Message", "hello")
	req.Control.Add("Auth-Type", "pap")
	return req
}

func TestConditionEvaluate(t *testing.T) {
	req := newTestRequest()

	testCases := []struct {
		name     string
		src      string
		expected bool
	}{
		{"string equality true", `request["User-Name"] == "bob"`, true},
		{"string equality false", `request["User-Name"] == "alice"`, false},
		{"numeric comparison", `request["NAS-Port"] > 10`, true},
		{"reply list access", `reply["Reply-Message"] == "hello"`, true},
		{"control list access", `control["Auth-Type"] == "pap"`, true},
		{"boolean combination", `request["User-Name"] == "bob" && request["NAS-Port"] < 100`, true},
		{"negation", `!(request["User-Name"] == "bob")`, false},
		{"function call", `upper(request["User-Name"]) == "BOB"`, true},
		{"length function", `strlen(request["User-Name"]) == 3`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cond, err := ParseCondition(tc.src, "test")
			require.NoError(t, err)

			got, err := cond.Evaluate(req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestConditionParseError(t *testing.T) {
	_, err := ParseCondition(`request["User-Name" ==`, "test")
	assert.Error(t, err)
}

func TestConditionMissingAttributeIsError(t *testing.T) {
	req := newTestRequest()
	cond, err := ParseCondition(`request["No-Such-Attr"] == "x"`, "test")
	require.NoError(t, err)

	got, err := cond.Evaluate(req)
	assert.Error(t, err)
	assert.False(t, got)
}

func TestConditionNonBooleanResult(t *testing.T) {
	req := newTestRequest()
	cond, err := ParseCondition(`request["User-Name"]`, "test")
	require.NoError(t, err)

	_, err = cond.Evaluate(req)
	assert.Error(t, err)
}

func TestTemplateEvaluate(t *testing.T) {
	req := newTestRequest()

	testCases := []struct {
		name     string
		src      string
		expected string
	}{
		{"plain text", "static-key", "static-key"},
		{"interpolation", `${request["User-Name"]}@example.org`, "bob@example.org"},
		{"numeric interpolation", `port-${request["NAS-Port"]}`, "port-15"},
		{"function in template", `${lower("ABC")}`, "abc"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl, err := ParseTemplate(tc.src, "test")
			require.NoError(t, err)

			got, err := tmpl.Evaluate(req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestTemplateEvaluateValueKeepsTypes(t *testing.T) {
	req := newTestRequest()

	testCases := []struct {
		name     string
		src      string
		expected interface{}
	}{
		{"plain text stays string", "static-key", "static-key"},
		{"single number expression", `${request["NAS-Port"]}`, 15},
		{"arithmetic", `${request["NAS-Port"] + 1}`, 16},
		{"mixed template is string", `port-${request["NAS-Port"]}`, "port-15"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl, err := ParseTemplate(tc.src, "test")
			require.NoError(t, err)

			got, err := tmpl.EvaluateValue(req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestTemplateParseError(t *testing.T) {
	_, err := ParseTemplate(`${unterminated`, "test")
	assert.Error(t, err)
}

func TestCtyRoundTrip(t *testing.T) {
	values := []interface{}{
		"string",
		42,
		true,
		[]interface{}{"a", "b"},
		map[string]interface{}{"k": "v"},
	}

	for _, v := range values {
		got := FromCty(ToCty(v))
		assert.Equal(t, v, got)
	}
}

package llmutils_test

import (
	"testing"

	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"
	clean := llmutils.CleanJSON([]byte(llmOutput))

	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"
	assert.Equal(t, expected, string(clean))

	llmOutput = "Here you go:\n```json\n\n[{\"city\": \"Paris\", \"country\": \"France\"}]\n```\n\n"
	clean = llmutils.CleanJSON([]byte(llmOutput))

	expected = "[{\"city\": \"Paris\", \"country\": \"France\"}]"
	assert.Equal(t, expected, string(clean))

	assert.Equal(t, "no json here", string(llmutils.CleanJSON([]byte("no json here"))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	// the same
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
}

func Test_Marshal(t *testing.T) {
	val := struct {
		State string `json:"state" yaml:"state"`
		Turns int    `json:"turns" yaml:"turns"`
	}{"answered", 2}

	assert.Equal(t, "{\n  \"state\": \"answered\",\n  \"turns\": 2\n}", llmutils.ToJSONIndent(val))
	assert.Equal(t, "state: answered\nturns: 2\n", llmutils.ToYAML(val))
}

func Test_EnsureEndsWithNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline("  \n"))
	assert.Equal(t, "done\n", llmutils.EnsureEndsWithNewline(" done "))
	assert.Equal(t, "done\n", llmutils.EnsureEndsWithNewline("done\n\n"))
}

package explain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selimozcann/seasec/internal/explain"
	"github.com/selimozcann/seasec/internal/model"
)

func TestNopPlaceholders(t *testing.T) {
	reason, desc := explain.Default().Explain(model.SecurityEvent{}, 0.9, model.SeverityHigh)
	assert.Equal(t, explain.NopReason, reason)
	assert.Equal(t, explain.NopDescription, desc)
}

func TestFuncAdapter(t *testing.T) {
	var e explain.ReasonExplainer = explain.Func(func(ev model.SecurityEvent, r float64, level model.Severity) (string, string) {
		return string(level), ev.PageURL
	})
	reason, desc := e.Explain(model.SecurityEvent{PageURL: "https://example.com"}, 0.5, model.SeverityMedium)
	assert.Equal(t, "Medium", reason)
	assert.Equal(t, "https://example.com", desc)
}

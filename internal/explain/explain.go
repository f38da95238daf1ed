package explain

import "github.com/selimozcann/seasec/internal/model"

// ReasonExplainer produces the free-text reason and description attached to
// each risk record.
type ReasonExplainer interface {
	Explain(ev model.SecurityEvent, risk float64, level model.Severity) (reason, description string)
}

// Func adapts a plain function to ReasonExplainer.
type Func func(ev model.SecurityEvent, risk float64, level model.Severity) (string, string)

func (f Func) Explain(ev model.SecurityEvent, risk float64, level model.Severity) (string, string) {
	return f(ev, risk, level)
}

// Placeholder texts returned by Nop.
const (
	NopReason      = "Reason not implemented"
	NopDescription = "Description not implemented"
)

// Nop fills the fields with fixed placeholders.
type Nop struct{}

func (Nop) Explain(model.SecurityEvent, float64, model.Severity) (string, string) {
	return NopReason, NopDescription
}

// Default returns the explainer used when none is configured.
func Default() ReasonExplainer { return Nop{} }

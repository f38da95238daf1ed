package features

import (
	"github.com/cockroachdb/errors"

	"github.com/selimozcann/seasec/internal/model"
)

// Names is the column order of every feature row. A model fitted on one
// order must never be scored with another.
var Names = []string{"https", "num_links", "num_forms", "has_login_form"}

// ErrInvalidEvent is returned when an event cannot be encoded.
var ErrInvalidEvent = errors.New("invalid security event")

// Row encodes a single event in Names order.
func Row(ev model.SecurityEvent) []float64 {
	return []float64{
		boolToFloat(ev.HTTPS),
		float64(ev.NumLinks),
		float64(ev.NumForms),
		boolToFloat(ev.HasLoginForm),
	}
}

// Extract encodes events into an N x len(Names) matrix. Row i always
// corresponds to events[i].
func Extract(events []model.SecurityEvent) ([][]float64, error) {
	out := make([][]float64, len(events))
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "event %d", i), ErrInvalidEvent)
		}
		out[i] = Row(ev)
	}
	return out, nil
}

// SameOrder reports whether names matches Names exactly.
func SameOrder(names []string) bool {
	if len(names) != len(Names) {
		return false
	}
	for i := range names {
		if names[i] != Names[i] {
			return false
		}
	}
	return true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

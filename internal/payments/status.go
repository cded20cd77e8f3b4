package payments

import (
	"encoding/json"
	"strings"
)

// Outcome collapses the processor's inconsistent status vocabulary into the
// three values the reconciler acts on. Anything unrecognized is Indeterminate:
// the callback is acknowledged but no business state moves.
type Outcome int

const (
	OutcomeIndeterminate Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "indeterminate"
	}
}

// NormalizeStatus is the single place raw processor statuses are interpreted.
// Observed success spellings: "success", "completed", numeric 1. Observed
// failure spellings: "failed", "declined", numeric 0. Never guess success.
func NormalizeStatus(raw any) Outcome {
	switch v := raw.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "success", "completed", "1":
			return OutcomeSuccess
		case "failed", "declined", "0":
			return OutcomeFailure
		}
	case float64:
		// encoding/json decodes bare numbers as float64
		if v == 1 {
			return OutcomeSuccess
		}
		if v == 0 {
			return OutcomeFailure
		}
	case int:
		if v == 1 {
			return OutcomeSuccess
		}
		if v == 0 {
			return OutcomeFailure
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			if n == 1 {
				return OutcomeSuccess
			}
			if n == 0 {
				return OutcomeFailure
			}
		}
	}
	return OutcomeIndeterminate
}

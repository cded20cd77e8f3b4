package payments

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Outcome
	}{
		{name: "success string", raw: "success", want: OutcomeSuccess},
		{name: "completed string", raw: "completed", want: OutcomeSuccess},
		{name: "numeric one", raw: float64(1), want: OutcomeSuccess},
		{name: "numeric string one", raw: "1", want: OutcomeSuccess},
		{name: "mixed case", raw: "SUCCESS", want: OutcomeSuccess},
		{name: "padded", raw: " success ", want: OutcomeSuccess},
		{name: "failed string", raw: "failed", want: OutcomeFailure},
		{name: "declined string", raw: "declined", want: OutcomeFailure},
		{name: "numeric zero", raw: float64(0), want: OutcomeFailure},
		{name: "numeric string zero", raw: "0", want: OutcomeFailure},
		{name: "unknown string", raw: "processing", want: OutcomeIndeterminate},
		{name: "unknown number", raw: float64(42), want: OutcomeIndeterminate},
		{name: "nil", raw: nil, want: OutcomeIndeterminate},
		{name: "empty string", raw: "", want: OutcomeIndeterminate},
		{name: "bool", raw: true, want: OutcomeIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestNormalizeStatus_JSONDecodedValues(t *testing.T) {
	// statuses arrive embedded in JSON payloads, so exercise the decode path
	for raw, want := range map[string]Outcome{
		`{"status": 1}`:           OutcomeSuccess,
		`{"status": 0}`:           OutcomeFailure,
		`{"status": "completed"}`: OutcomeSuccess,
		`{"status": "declined"}`:  OutcomeFailure,
		`{"status": "pending"}`:   OutcomeIndeterminate,
		`{"status": null}`:        OutcomeIndeterminate,
	} {
		var doc struct {
			Status any `json:"status"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &doc))
		assert.Equal(t, want, NormalizeStatus(doc.Status), "payload %s", raw)
	}
}

package harness

import (
	"github.com/roach88/entitysync/internal/orphans"
	"github.com/roach88/entitysync/internal/remote"
)

// StepTrace is one flow step and the remote calls it caused, in issue order.
type StepTrace struct {
	Op    string        `json:"op"`
	Error string        `json:"error,omitempty"`
	Calls []remote.Call `json:"calls"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Steps    []StepTrace       `json:"steps"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []orphans.Warning `json:"warnings"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Steps:    []StepTrace{},
		Errors:   []string{},
		Warnings: []orphans.Warning{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Calls flattens the traced calls of every step.
func (r *Result) Calls() []remote.Call {
	var out []remote.Call
	for _, s := range r.Steps {
		out = append(out, s.Calls...)
	}
	return out
}

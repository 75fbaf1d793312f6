// Package agent provides instruction-bound language-model roles with
// optional callable tools. Roles are plain data; a Runner executes them.
package agent

import (
	"context"
	"encoding/json"
)

// Tool is a capability a role may call during a run. Invoke receives the
// model-produced arguments as raw JSON and returns the tool output as text.
// Tools that want the model to recover from failures in-band should encode
// the failure into the returned string and return a nil error; a non-nil
// error aborts the whole run.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-schema object describing the arguments.
	Parameters() map[string]any
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Role is a named invocation profile around a language-model call: fixed
// instructions, an optional tool set, and optional handoff targets the model
// may delegate to mid-run.
type Role struct {
	Name         string
	Instructions string
	// Model overrides the runner's default model when non-empty.
	Model    string
	Tools    []Tool
	Handoffs []*Role
}

// Runner executes a role against an input text and returns the final output.
type Runner interface {
	Run(ctx context.Context, role *Role, input string) (string, error)
}

package agent

import "context"

// ActionDescriptor declares one action a Module exposes: its JSON-Schema
// input/output documents, optional execution behavior, and an optional
// per-action timeout.
type ActionDescriptor struct {
	Name     string
	Input    any
	Output   any
	Behavior string // "" or "interactive"
	Timeout  string // Go duration string, e.g. "5s"; "" means no timeout
}

// Module is a named handler exposing one or more actions.
type Module interface {
	Name() string
	Type() ModuleType
	Actions() []ActionDescriptor
	HasAction(name string) bool

	// ExecuteAction runs the named action against req. req.ResultsDir()
	// is the non-blocking results directory (empty for blocking requests),
	// used by external modules running interactive actions.
	ExecuteAction(ctx context.Context, req *ActionRequest) (ActionOutcome, error)

	// ValidateInput validates req's params against the named action's
	// input schema.
	ValidateInput(action string, params map[string]any) error
}

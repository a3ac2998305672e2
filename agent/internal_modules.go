package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// internalModule is the shared scaffolding for the three compiled-in
// modules: ping, echo, status. None of them declare real input/output
// schemas (they are trusted, fixed-shape code, not subprocess contracts),
// so ValidateInput always succeeds.
type internalModule struct {
	name    string
	actions []ActionDescriptor
	execute func(ctx context.Context, req *ActionRequest) (ActionOutcome, error)
}

func (m *internalModule) Name() string              { return m.name }
func (m *internalModule) Type() ModuleType           { return Internal }
func (m *internalModule) Actions() []ActionDescriptor { return m.actions }

func (m *internalModule) HasAction(name string) bool {
	for _, a := range m.actions {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (m *internalModule) ValidateInput(action string, params map[string]any) error {
	return nil
}

func (m *internalModule) ExecuteAction(ctx context.Context, req *ActionRequest) (ActionOutcome, error) {
	return m.execute(ctx, req)
}

// NewPingModule grounds exactly on original_source/lib/src/modules/ping.cc:
// it returns the debug chunk's hop list as {request_hops: [...]}, and
// fails with a RequestProcessingError if the debug chunk is missing or
// its first entry has no "hops" list. Hop items that are not objects are
// dropped from the list rather than failing the request.
func NewPingModule() Module {
	return &internalModule{
		name:    "ping",
		actions: []ActionDescriptor{{Name: "ping"}},
		execute: func(ctx context.Context, req *ActionRequest) (ActionOutcome, error) {
			hops, err := pingHops(req)
			if err != nil {
				return ActionOutcome{}, err
			}
			return ActionOutcome{
				Type:    Internal,
				Results: map[string]any{"request_hops": hops},
			}, nil
		},
	}
}

func pingHops(req *ActionRequest) ([]map[string]any, error) {
	hops := req.debugHops()
	if hops == nil {
		return nil, &RequestProcessingError{Reason: "no debug entry"}
	}
	return hops, nil
}

// NewEchoModule returns its "argument" param verbatim.
func NewEchoModule() Module {
	return &internalModule{
		name:    "echo",
		actions: []ActionDescriptor{{Name: "echo"}},
		execute: func(ctx context.Context, req *ActionRequest) (ActionOutcome, error) {
			return ActionOutcome{
				Type:    Internal,
				Results: req.Params()["argument"],
			}, nil
		},
	}
}

// NewStatusModule reads a prior transaction's persisted metadata file from
// the spool and returns it. spoolDir is the agent-wide spool root.
func NewStatusModule(spoolDir string) Module {
	return &internalModule{
		name:    "status",
		actions: []ActionDescriptor{{Name: "query"}},
		execute: func(ctx context.Context, req *ActionRequest) (ActionOutcome, error) {
			txID, _ := req.Params()["transaction_id"].(string)
			if txID == "" {
				txID = req.TransactionID()
			}
			path := filepath.Join(spoolDir, txID, "metadata")
			raw, err := os.ReadFile(path)
			if err != nil {
				return ActionOutcome{}, &RequestProcessingError{
					Reason: fmt.Sprintf("no results directory for transaction %q", txID),
				}
			}
			var doc map[string]any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return ActionOutcome{}, &RequestProcessingError{
					Reason: fmt.Sprintf("transaction %q metadata is corrupt: %s", txID, err),
				}
			}
			return ActionOutcome{Type: Internal, Results: doc}, nil
		},
	}
}

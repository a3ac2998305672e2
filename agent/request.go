package agent

import (
	"encoding/json"
	"sync"
)

// ActionRequest is an immutable view of a validated inbound message.
// The only attribute that ever changes after construction is the
// results directory, and only once, via SetResultsDir.
type ActionRequest struct {
	requestType RequestType

	id            string
	sender        string
	transactionID string
	module        string
	action        string
	notifyOutcome bool

	params     map[string]any
	paramsText string
	config     map[string]any
	requestTxt string
	debug      []map[string]any

	resultsDirOnce sync.Once
	resultsDir     string
}

// NewActionRequest validates and constructs an ActionRequest from a
// RequestType and the transport layer's pre-parsed chunks. It fails with
// a *RequestFormatError if the envelope is malformed or the data chunk is
// binary.
func NewActionRequest(t RequestType, chunks ParsedChunks) (*ActionRequest, error) {
	if chunks.Binary {
		return nil, &RequestFormatError{Reason: "data chunk is binary, expected structured data"}
	}

	id, _ := chunks.Envelope["id"].(string)
	sender, _ := chunks.Envelope["sender"].(string)
	transactionID, _ := chunks.Envelope["transaction_id"].(string)
	if id == "" {
		return nil, &RequestFormatError{Reason: "envelope missing non-empty id"}
	}
	if sender == "" {
		return nil, &RequestFormatError{Reason: "envelope missing non-empty sender"}
	}
	if transactionID == "" {
		return nil, &RequestFormatError{Reason: "envelope missing non-empty transaction_id"}
	}
	if chunks.Data == nil {
		return nil, &RequestFormatError{Reason: "missing data chunk"}
	}

	dataTxID, _ := chunks.Data["transaction_id"].(string)
	if dataTxID != "" && dataTxID != transactionID {
		return nil, &RequestFormatError{Reason: "envelope.transaction_id does not match data.transaction_id"}
	}

	module, _ := chunks.Data["module"].(string)
	action, _ := chunks.Data["action"].(string)
	if module == "" || action == "" {
		return nil, &RequestFormatError{Reason: "data chunk missing non-empty module or action"}
	}

	notify, _ := chunks.Data["notify_outcome"].(bool)

	params, _ := chunks.Data["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, &RequestFormatError{Reason: "params is not structured data: " + err.Error()}
	}

	requestBytes, err := json.Marshal(chunks.Envelope)
	if err != nil {
		return nil, &RequestFormatError{Reason: "envelope is not structured data: " + err.Error()}
	}

	return &ActionRequest{
		requestType:   t,
		id:            id,
		sender:        sender,
		transactionID: transactionID,
		module:        module,
		action:        action,
		notifyOutcome: notify,
		params:        params,
		paramsText:    string(paramsBytes),
		config:        map[string]any{},
		requestTxt:    string(requestBytes),
		debug:         chunks.Debug,
	}, nil
}

func (r *ActionRequest) Type() RequestType      { return r.requestType }
func (r *ActionRequest) ID() string             { return r.id }
func (r *ActionRequest) Sender() string         { return r.sender }
func (r *ActionRequest) TransactionID() string  { return r.transactionID }
func (r *ActionRequest) Module() string         { return r.module }
func (r *ActionRequest) Action() string         { return r.action }
func (r *ActionRequest) NotifyOutcome() bool    { return r.notifyOutcome }
func (r *ActionRequest) Params() map[string]any { return r.params }
func (r *ActionRequest) ParamsText() string     { return r.paramsText }
func (r *ActionRequest) RequestText() string    { return r.requestTxt }
func (r *ActionRequest) Config() map[string]any { return r.config }

// WithConfig returns a copy of the request carrying the given
// configuration blob. Nothing in this module calls it; external modules
// take their configuration from the module itself, not from the request.
func (r *ActionRequest) WithConfig(cfg map[string]any) *ActionRequest {
	clone := *r
	clone.config = cfg
	return &clone
}

// ResultsDir returns the results directory, or "" if unset.
func (r *ActionRequest) ResultsDir() string { return r.resultsDir }

// SetResultsDir sets the non-blocking results directory. Callable exactly
// once; subsequent calls are no-ops, matching the original's
// "set exactly once before dispatch" contract.
func (r *ActionRequest) SetResultsDir(path string) {
	r.resultsDirOnce.Do(func() {
		r.resultsDir = path
	})
}

// debugHops returns the hop list from the first debug chunk, or nil if
// there is no debug entry or it has no usable "hops" list.
func (r *ActionRequest) debugHops() []map[string]any {
	if len(r.debug) == 0 {
		return nil
	}
	raw, ok := r.debug[0]["hops"].([]any)
	if !ok {
		return nil
	}
	hops := make([]map[string]any, 0, len(raw))
	for _, h := range raw {
		if m, ok := h.(map[string]any); ok {
			hops = append(hops, m)
		}
	}
	return hops
}

// Label formats a short identifier for log lines, e.g.
// "blocking 'ping ping' request (transaction t1)".
func (r *ActionRequest) Label() string {
	kind := "blocking"
	if r.requestType == NonBlocking {
		kind = "non-blocking"
	}
	return kind + " '" + r.module + " " + r.action + "' request (transaction " + r.transactionID + ")"
}

package agent

import "time"

// nowISO returns the current UTC time as an ISO-8601 string. Lexicographic
// comparison of two such strings agrees with chronological order, which
// is what the start<=end testable property relies on.
var nowISO = func() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ActionResponse builds the outbound reply object for one request,
// carrying a schema-validated action_metadata document through a
// Running -> (Success|Failure) lifecycle.
type ActionResponse struct {
	validator *SchemaValidator

	requestType RequestType
	module      string
	action      string

	metadata map[string]any

	// stdout/stderr/exitcode are not part of action_metadata (spec §3)
	// but are needed to project a StatusOutput response; the internal
	// "status" module populates them from the spool's sibling files.
	stdout   string
	stderr   string
	exitCode int
}

// NewActionResponse begins recording a response for req: status=Running,
// start=now, request fields copied into metadata.
func NewActionResponse(validator *SchemaValidator, req *ActionRequest) *ActionResponse {
	return &ActionResponse{
		validator:   validator,
		requestType: req.Type(),
		module:      req.Module(),
		action:      req.Action(),
		metadata: map[string]any{
			"requester":      req.Sender(),
			"module":         req.Module(),
			"action":         req.Action(),
			"request_params": req.Params(),
			"transaction_id": req.TransactionID(),
			"request_id":     req.ID(),
			"notify_outcome": req.NotifyOutcome(),
			"start":          nowISO(),
			"status":         string(StatusRunning),
		},
	}
}

// ActionMetadataFromDocument wraps an already-persisted action_metadata
// document (as read back from a spool file) in an ActionResponse, for the
// internal "status" module.
func ActionMetadataFromDocument(validator *SchemaValidator, doc map[string]any) *ActionResponse {
	module, _ := doc["module"].(string)
	action, _ := doc["action"].(string)
	return &ActionResponse{
		validator: validator,
		module:    module,
		action:    action,
		metadata:  doc,
	}
}

func (r *ActionResponse) TransactionID() string {
	id, _ := r.metadata["transaction_id"].(string)
	return id
}

func (r *ActionResponse) Status() ActionStatus {
	s, _ := r.metadata["status"].(string)
	return ActionStatus(s)
}

// SetStatus overwrites status.
func (r *ActionResponse) SetStatus(s ActionStatus) {
	r.metadata["status"] = string(s)
}

// SetValidResultsAndEnd records a successful completion.
func (r *ActionResponse) SetValidResultsAndEnd(results any, execError string) {
	r.metadata["end"] = nowISO()
	r.metadata["results_are_valid"] = true
	r.metadata["results"] = results
	r.metadata["status"] = string(StatusSuccess)
	if execError != "" {
		r.metadata["execution_error"] = execError
	}
}

// SetBadResultsAndEnd records a failed completion.
func (r *ActionResponse) SetBadResultsAndEnd(execError string) {
	r.metadata["end"] = nowISO()
	r.metadata["results_are_valid"] = false
	r.metadata["execution_error"] = execError
	r.metadata["status"] = string(StatusFailure)
}

// SetStreams attaches captured stdout/stderr/exit code for StatusOutput
// projection. Not part of the persisted action_metadata document.
func (r *ActionResponse) SetStreams(stdout, stderr string, exitCode int) {
	r.stdout = stdout
	r.stderr = stderr
	r.exitCode = exitCode
}

// Metadata returns the underlying action_metadata document, e.g. for
// persisting to the spool.
func (r *ActionResponse) Metadata() map[string]any { return r.metadata }

// Valid validates the metadata document against the fixed schema.
func (r *ActionResponse) Valid() error {
	return r.validator.ValidateActionMetadata(r.metadata)
}

// ValidFor validates the metadata document against the fixed schema and
// additionally requires the extra fields R's wire shape demands.
func (r *ActionResponse) ValidFor(t ResponseType) error {
	if err := r.Valid(); err != nil {
		return err
	}
	switch t {
	case ResponseBlocking, ResponseNonBlocking:
		if _, ok := r.metadata["results"]; !ok {
			return &ValidationError{Reason: "response missing required field 'results'"}
		}
	case ResponseRPCError:
		if _, ok := r.metadata["execution_error"]; !ok {
			return &ValidationError{Reason: "response missing required field 'execution_error'"}
		}
	}
	return nil
}

// ToJSON projects the metadata into the wire shape for response type t.
func (r *ActionResponse) ToJSON(t ResponseType) map[string]any {
	switch t {
	case ResponseBlocking, ResponseNonBlocking:
		return map[string]any{
			"transaction_id": r.TransactionID(),
			"results":        r.metadata["results"],
		}
	case ResponseStatus:
		return map[string]any{
			"transaction_id": r.TransactionID(),
			"status":         r.metadata["status"],
			"stdout":         r.stdout,
			"stderr":         r.stderr,
			"exitcode":       r.exitCode,
		}
	case ResponseRPCError:
		return map[string]any{
			"id":          r.metadata["request_id"],
			"description": r.metadata["execution_error"],
		}
	}
	return nil
}

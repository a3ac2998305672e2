package agent

// RequestType distinguishes a caller awaiting the final result inline
// from one that receives a provisional receipt and an optional later push.
type RequestType string

const (
	Blocking    RequestType = "blocking"
	NonBlocking RequestType = "non_blocking"
)

// ModuleType distinguishes compiled-in modules from subprocess-backed ones.
type ModuleType string

const (
	Internal ModuleType = "internal"
	External ModuleType = "external"
)

// ActionStatus is persisted as one of three stable string names.
type ActionStatus string

const (
	StatusRunning ActionStatus = "running"
	StatusSuccess ActionStatus = "success"
	StatusFailure ActionStatus = "failure"
)

// ResponseType selects which outbound wire shape ActionResponse.ToJSON
// projects its metadata into.
type ResponseType string

const (
	ResponseBlocking    ResponseType = "blocking"
	ResponseNonBlocking ResponseType = "non_blocking"
	ResponseStatus      ResponseType = "status_output"
	ResponseRPCError    ResponseType = "rpc_error"
)

// ParsedChunks is the inbound collaborator shape handed to the Request
// Processor by the (out-of-scope) transport layer: a pre-parsed envelope,
// data chunk, and debug hop list.
type ParsedChunks struct {
	Envelope        map[string]any
	Data            map[string]any
	Debug           []map[string]any
	NumInvalidDebug int
	Binary          bool
}

// ActionOutcome is what a Module.ExecuteAction call returns. For internal
// modules only Results is meaningful; external modules populate all fields.
type ActionOutcome struct {
	Type     ModuleType
	Results  any
	StdOut   string
	StdErr   string
	ExitCode int
}

package agent

import "context"

// Connector is the transport-facing interface the Request Processor sends
// responses through. Per spec.md the wire transport itself is an
// out-of-scope external collaborator; this module defines the interface
// here and ships one concrete implementation (transport/mqtt.Connector)
// so the whole pipeline can be exercised end-to-end.
type Connector interface {
	// SendProvisionalResponse acknowledges a non-blocking request before
	// its task has completed: {transaction_id}.
	SendProvisionalResponse(ctx context.Context, req *ActionRequest) error

	// SendBlockingResponse delivers the synchronous result of a blocking
	// request: {transaction_id, results}.
	SendBlockingResponse(ctx context.Context, req *ActionRequest, resp *ActionResponse) error

	// SendNonBlockingResponse delivers the notify_outcome push after a
	// non-blocking task completes: {transaction_id, results}.
	SendNonBlockingResponse(ctx context.Context, req *ActionRequest, resp *ActionResponse) error

	// SendStatusResponse delivers the reply to the internal "status"
	// module's query action: {transaction_id, status, stdout, stderr,
	// exitcode}.
	SendStatusResponse(ctx context.Context, req *ActionRequest, resp *ActionResponse) error

	// SendPXPError delivers an application-level error addressed to the
	// sender within the transaction: {id, description}.
	SendPXPError(ctx context.Context, req *ActionRequest, description string) error

	// SendPCPError delivers a transport-level error for a request whose
	// transaction could not be identified at all.
	SendPCPError(ctx context.Context, id, sender, description string) error
}

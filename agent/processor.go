package agent

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// RequestProcessor orchestrates validation, dispatch, and response
// emission. It owns the Thread Container and Results Mutex Table; the
// Module Registry is passed in and only read here.
type RequestProcessor struct {
	registry   *Registry
	connector  Connector
	validator  *SchemaValidator
	mutexTable *MutexTable
	threads    *ThreadContainer
	spoolDir   string
	logger     *log.Logger
}

// NewRequestProcessor wires the processor's dependencies together.
func NewRequestProcessor(registry *Registry, connector Connector, validator *SchemaValidator, spoolDir string, threadCapacity int, logger *log.Logger) *RequestProcessor {
	if logger == nil {
		logger = log.New(os.Stderr, "pxp-agent.request_processor: ", log.LstdFlags)
	}
	return &RequestProcessor{
		registry:   registry,
		connector:  connector,
		validator:  validator,
		mutexTable: NewMutexTable(),
		threads:    NewThreadContainer(threadCapacity),
		spoolDir:   spoolDir,
		logger:     logger,
	}
}

// Shutdown drains in-flight non-blocking tasks, up to drainTimeout.
func (p *RequestProcessor) Shutdown(drainTimeout time.Duration) {
	p.threads.Shutdown(drainTimeout)
}

// ProcessRequest is the entry point: construct -> validate -> dispatch.
func (p *RequestProcessor) ProcessRequest(ctx context.Context, t RequestType, chunks ParsedChunks) {
	req, err := NewActionRequest(t, chunks)
	if err != nil {
		id, _ := chunks.Envelope["id"].(string)
		sender, _ := chunks.Envelope["sender"].(string)
		if sendErr := p.connector.SendPCPError(ctx, id, sender, err.Error()); sendErr != nil {
			p.logger.Printf("failed to send PCP error for request %q: %v", id, sendErr)
		}
		return
	}

	module, err := p.validateRequestContent(req)
	if err != nil {
		p.sendPXPError(ctx, req, err.Error())
		return
	}

	switch req.Type() {
	case Blocking:
		p.processBlockingRequest(ctx, module, req)
	case NonBlocking:
		p.processNonBlockingRequest(ctx, module, req)
	}
}

// validateRequestContent implements spec §4.7 step 2.
func (p *RequestProcessor) validateRequestContent(req *ActionRequest) (Module, error) {
	module, err := p.registry.Get(req.Module())
	if err != nil {
		return nil, err
	}
	if !module.HasAction(req.Action()) {
		return nil, &RegistryMissError{Reason: "unknown action '" + req.Action() + "' for module '" + req.Module() + "'"}
	}
	if module.Type() == Internal && req.Type() == NonBlocking {
		return nil, &RequestProcessingError{Reason: "only blocking supported"}
	}
	if err := module.ValidateInput(req.Action(), req.Params()); err != nil {
		return nil, &ValidationError{Reason: "invalid input: " + err.Error()}
	}
	return module, nil
}

func (p *RequestProcessor) processBlockingRequest(ctx context.Context, module Module, req *ActionRequest) {
	outcome, err := module.ExecuteAction(ctx, req)
	if err != nil {
		p.sendPXPError(ctx, req, err.Error())
		return
	}

	if module.Name() == "status" {
		queriedTxID, _ := req.Params()["transaction_id"].(string)
		if queriedTxID == "" {
			queriedTxID = req.TransactionID()
		}
		doc, _ := outcome.Results.(map[string]any)
		resp := ActionMetadataFromDocument(p.validator, doc)
		resp.metadata["transaction_id"] = queriedTxID
		stdout, stderr, exitcode := readSpoolStreams(p.spoolDir, queriedTxID, doc)
		resp.SetStreams(stdout, stderr, exitcode)
		if sendErr := p.connector.SendStatusResponse(ctx, req, resp); sendErr != nil {
			p.logger.Printf("%s: failed to send status response: %v", req.Label(), sendErr)
		}
		return
	}

	resp := NewActionResponse(p.validator, req)
	resp.SetValidResultsAndEnd(outcome.Results, "")
	if sendErr := p.connector.SendBlockingResponse(ctx, req, resp); sendErr != nil {
		p.logger.Printf("%s: failed to send blocking response: %v", req.Label(), sendErr)
	}
}

func (p *RequestProcessor) processNonBlockingRequest(ctx context.Context, module Module, req *ActionRequest) {
	req.SetResultsDir(filepath.Join(p.spoolDir, req.TransactionID()))

	storage, err := NewResultsStorage(req, p.mutexTable)
	if err != nil {
		p.sendPXPError(ctx, req, err.Error())
		return
	}

	err = p.threads.Spawn(func() {
		p.nonBlockingActionTask(module, req, storage)
	})
	if err != nil {
		p.sendPXPError(ctx, req, err.Error())
		return
	}

	if sendErr := p.connector.SendProvisionalResponse(ctx, req); sendErr != nil {
		p.logger.Printf("%s: failed to send provisional response: %v", req.Label(), sendErr)
	}
}

// nonBlockingActionTask implements spec §4.7's worker algorithm,
// translating the original's scope_exit cleanup into a single defer that
// runs on every exit path exactly once.
func (p *RequestProcessor) nonBlockingActionTask(module Module, req *ActionRequest, storage *ResultsStorage) {
	// ResultsStorage.NewResultsStorage already registered this
	// transaction's mutex; a miss here is the MutexTableError invariant
	// violation in spec §7 — logged, and the task skips locking rather
	// than fabricating a fresh mutex nobody else can see.
	txMutex, mtErr := p.mutexTable.Get(req.TransactionID())
	if mtErr != nil {
		p.logger.Printf("%s: %v", req.Label(), mtErr)
		txMutex = nil
	}
	locked := false

	start := time.Now()
	var exitCode int
	var execError string

	defer func() {
		if txMutex != nil && !locked {
			txMutex.Lock()
			locked = true
		}
		p.mutexTable.Remove(req.TransactionID())
		if txMutex != nil && locked {
			txMutex.Unlock()
		}

		duration := time.Since(start).String()
		if err := storage.WriteMetadata(exitCode, execError, duration); err != nil {
			p.logger.Printf("%s: failed to write final metadata: %v", req.Label(), err)
		}
	}()

	outcome, err := module.ExecuteAction(context.Background(), req)
	if err != nil {
		execError = err.Error()
		exitCode = 1
		if sendErr := p.connector.SendPXPError(context.Background(), req, execError); sendErr != nil {
			p.logger.Printf("%s: failed to send PXP error for failed task: %v", req.Label(), sendErr)
		}
		return
	}

	if txMutex != nil {
		txMutex.Lock()
		locked = true
	}
	exitCode = outcome.ExitCode

	if req.NotifyOutcome() {
		resp := NewActionResponse(p.validator, req)
		resp.SetValidResultsAndEnd(outcome.Results, "")
		if sendErr := p.connector.SendNonBlockingResponse(context.Background(), req, resp); sendErr != nil {
			p.logger.Printf("%s: failed to send non-blocking response: %v", req.Label(), sendErr)
		}
	}
}

func (p *RequestProcessor) sendPXPError(ctx context.Context, req *ActionRequest, description string) {
	if err := p.connector.SendPXPError(ctx, req, description); err != nil {
		p.logger.Printf("%s: failed to send PXP error: %v", req.Label(), err)
	}
}

func readSpoolStreams(spoolDir, transactionID string, metadata map[string]any) (stdout, stderr string, exitcode int) {
	dir := filepath.Join(spoolDir, transactionID)
	if raw, err := os.ReadFile(filepath.Join(dir, "stdout")); err == nil {
		stdout = string(raw)
	}
	if raw, err := os.ReadFile(filepath.Join(dir, "stderr")); err == nil {
		stderr = string(raw)
	}
	if code, ok := metadata["exitcode"].(float64); ok {
		exitcode = int(code)
	}
	return stdout, stderr, exitcode
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const maxCapturedOutput = 10 * 1024 * 1024 // per stream, guards against runaway subprocess output.

// externalAction is a loaded action descriptor plus its compiled schemas.
type externalAction struct {
	desc    ActionDescriptor
	input   *gojsonschema.Schema
	output  *gojsonschema.Schema
	timeout time.Duration
}

// ExternalModule adapts a discovered executable into the Module
// interface: metadata discovery happens once at load time; each
// ExecuteAction call writes {configuration, input} to a fresh subprocess's
// stdin and reads the stdout/stderr/exit code back.
//
// Grounded on original_source/lib/tests/unit/external_module_test.cc for
// behavior and ratnesh-maurya-forge/forge-cli/runtime/subprocess.go for the
// Go subprocess-lifecycle idiom (exec.CommandContext, which kills the
// subprocess when its timeout context expires).
type ExternalModule struct {
	name         string
	path         string
	config       map[string]any
	configSchema *gojsonschema.Schema
	configOK     bool
	configErr    error
	actions      map[string]*externalAction
	actionList   []ActionDescriptor
}

// LoadExternalModule runs the metadata-discovery handshake against path
// (invoke with no arguments, no stdin, read JSON metadata from stdout) and
// validates it against the fixed meta-schema. Returns a *LoadingError on
// any failure, per spec §4.2 step 2.
func LoadExternalModule(validator *SchemaValidator, path string) (*ExternalModule, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	cmd := exec.Command(path)
	cmd.Stdin = bytes.NewReader(nil)
	out, err := cmd.Output()
	if err != nil {
		return nil, &LoadingError{Module: name, Reason: "metadata discovery failed: " + err.Error()}
	}

	var meta map[string]any
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, &LoadingError{Module: name, Reason: "metadata is not valid JSON: " + err.Error()}
	}
	if err := validator.ValidateModuleMeta(meta); err != nil {
		return nil, &LoadingError{Module: name, Reason: err.Error()}
	}

	m := &ExternalModule{
		name:    name,
		path:    path,
		actions: make(map[string]*externalAction),
	}

	rawActions, _ := meta["actions"].([]any)
	for _, ra := range rawActions {
		am, ok := ra.(map[string]any)
		if !ok {
			continue
		}
		actionName, _ := am["name"].(string)
		behavior, _ := am["behavior"].(string)
		timeoutStr, _ := am["timeout"].(string)

		inputSchema, err := validator.CompileSchema(name+"."+actionName+".input", am["input"])
		if err != nil {
			return nil, &LoadingError{Module: name, Reason: "compiling input schema for action " + actionName + ": " + err.Error()}
		}
		outputSchema, err := validator.CompileSchema(name+"."+actionName+".output", am["output"])
		if err != nil {
			return nil, &LoadingError{Module: name, Reason: "compiling output schema for action " + actionName + ": " + err.Error()}
		}

		var timeout time.Duration
		if timeoutStr != "" {
			timeout, err = time.ParseDuration(timeoutStr)
			if err != nil {
				return nil, &LoadingError{Module: name, Reason: "invalid timeout for action " + actionName + ": " + err.Error()}
			}
		}

		desc := ActionDescriptor{Name: actionName, Input: am["input"], Output: am["output"], Behavior: behavior, Timeout: timeoutStr}
		m.actions[actionName] = &externalAction{desc: desc, input: inputSchema, output: outputSchema, timeout: timeout}
		m.actionList = append(m.actionList, desc)
	}

	if cfgSchema, ok := meta["configuration"]; ok {
		schema, err := validator.CompileSchema(name+".configuration", cfgSchema)
		if err != nil {
			return nil, &LoadingError{Module: name, Reason: "compiling configuration schema: " + err.Error()}
		}
		m.configSchema = schema
	}

	return m, nil
}

// ApplyConfiguration loads <modules_config_dir>/<module>.conf (if present)
// and validates it against the module's declared configuration schema.
// Per spec §4.2 step 4, an invalid configuration does not prevent the
// module from loading; it is simply rejected and logged by the caller, and
// the module runs with an empty configuration object instead (SPEC_FULL.md
// §8 scenario 7).
func (m *ExternalModule) ApplyConfiguration(validator *SchemaValidator, configDir string) {
	path := filepath.Join(configDir, m.name+".conf")
	raw, err := os.ReadFile(path)
	if err != nil {
		return // no configuration file for this module; not an error.
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		m.configErr = &ValidationError{Reason: "module configuration is not valid JSON: " + err.Error()}
		return
	}
	if m.configSchema != nil {
		if err := validateAgainst(m.configSchema, cfg); err != nil {
			m.configErr = err
			return
		}
	}
	m.config = cfg
	m.configOK = true
}

// ConfigError returns the reason, if any, the module's configuration file
// was rejected.
func (m *ExternalModule) ConfigError() error { return m.configErr }

// ConfigFor returns the module's resolved configuration blob and whether
// it is valid. A module with no configuration file, or whose file was
// rejected by the declared schema, returns (nil, false) — ExecuteAction
// still runs such a module with an empty configuration object.
func (m *ExternalModule) ConfigFor() (map[string]any, bool) {
	if !m.configOK {
		return nil, false
	}
	return m.config, true
}

func (m *ExternalModule) Name() string                 { return m.name }
func (m *ExternalModule) Type() ModuleType              { return External }
func (m *ExternalModule) Actions() []ActionDescriptor   { return m.actionList }

func (m *ExternalModule) HasAction(name string) bool {
	_, ok := m.actions[name]
	return ok
}

func (m *ExternalModule) ValidateInput(action string, params map[string]any) error {
	a, ok := m.actions[action]
	if !ok {
		return &RegistryMissError{Reason: fmt.Sprintf("unknown action %q for module %q", action, m.name)}
	}
	if a.input == nil {
		return nil
	}
	return validateAgainst(a.input, params)
}

// ExecuteAction writes {configuration, input} to the subprocess's stdin
// and reads its stdout/stderr/exit code. Interactive non-blocking actions
// instead have stdout/stderr redirected to files in the request's results
// directory; they are still waited on, not detached from the agent.
func (m *ExternalModule) ExecuteAction(ctx context.Context, req *ActionRequest) (ActionOutcome, error) {
	a, ok := m.actions[req.Action()]
	if !ok {
		return ActionOutcome{}, &RegistryMissError{Reason: fmt.Sprintf("unknown action %q for module %q", req.Action(), m.name)}
	}

	cfg := m.config
	if cfg == nil {
		cfg = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{
		"configuration": cfg,
		"input":         req.Params(),
	})
	if err != nil {
		return ActionOutcome{}, &ProcessingError{Reason: "marshaling subprocess input: " + err.Error()}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if a.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	interactive := a.desc.Behavior == "interactive" && req.Type() == NonBlocking && req.ResultsDir() != ""
	if interactive {
		return m.runDetached(runCtx, a, req, payload)
	}
	return m.runBlockingCapture(runCtx, a, req, payload)
}

func (m *ExternalModule) runBlockingCapture(ctx context.Context, a *externalAction, req *ActionRequest, payload []byte) (ActionOutcome, error) {
	cmd := exec.CommandContext(ctx, m.path, a.desc.Name)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr boundedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return ActionOutcome{}, &ProcessingError{Reason: "timeout"}
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ActionOutcome{}, &ProcessingError{Reason: "subprocess failed: " + runErr.Error()}
		}
	}

	if exitCode != 0 {
		return ActionOutcome{Type: External, StdOut: stdout.String(), StdErr: stderr.String(), ExitCode: exitCode},
			&ProcessingError{Reason: tail(stderr.String(), 4096)}
	}

	var results any
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil {
		return ActionOutcome{Type: External, StdOut: stdout.String(), StdErr: stderr.String(), ExitCode: exitCode},
			&ProcessingError{Reason: "output is not valid JSON: " + err.Error()}
	}
	if a.output != nil {
		if err := validateAgainst(a.output, results); err != nil {
			return ActionOutcome{Type: External, StdOut: stdout.String(), StdErr: stderr.String(), ExitCode: exitCode},
				&ProcessingError{Reason: "output failed schema validation: " + err.Error()}
		}
	}

	return ActionOutcome{Type: External, Results: results, StdOut: stdout.String(), StdErr: stderr.String(), ExitCode: exitCode}, nil
}

// runDetached runs the subprocess with stdout/stderr redirected to files
// in the results directory and waits for it to exit (or for ctx to
// expire, which kills it), then writes the exit code to an "exitcode"
// file. The process is not detached from the agent: only its output is
// file-backed rather than memory-backed, and no results are parsed from
// it.
func (m *ExternalModule) runDetached(ctx context.Context, a *externalAction, req *ActionRequest, payload []byte) (ActionOutcome, error) {
	cmd := exec.CommandContext(ctx, m.path, a.desc.Name)
	cmd.Stdin = bytes.NewReader(payload)

	stdoutFile, err := os.Create(filepath.Join(req.ResultsDir(), "stdout"))
	if err != nil {
		return ActionOutcome{}, &StorageError{Reason: "creating stdout file: " + err.Error()}
	}
	defer stdoutFile.Close()
	stderrFile, err := os.Create(filepath.Join(req.ResultsDir(), "stderr"))
	if err != nil {
		return ActionOutcome{}, &StorageError{Reason: "creating stderr file: " + err.Error()}
	}
	defer stderrFile.Close()

	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return ActionOutcome{}, &ProcessingError{Reason: "timeout"}
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ActionOutcome{}, &ProcessingError{Reason: "subprocess failed: " + runErr.Error()}
		}
	}
	_ = os.WriteFile(filepath.Join(req.ResultsDir(), "exitcode"), []byte(fmt.Sprintf("%d", exitCode)), 0o644)

	if exitCode != 0 {
		return ActionOutcome{Type: External, ExitCode: exitCode}, &ProcessingError{Reason: "subprocess exited " + fmt.Sprint(exitCode)}
	}
	return ActionOutcome{Type: External, ExitCode: exitCode}, nil
}

// boundedBuffer caps how much a subprocess's stream can accumulate, per
// the §9 design note on bounded readers for stdout/stderr.
type boundedBuffer struct {
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len() >= maxCapturedOutput {
		return len(p), nil
	}
	room := maxCapturedOutput - b.buf.Len()
	if len(p) > room {
		b.buf.Write(p[:room])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string { return b.buf.String() }
func (b *boundedBuffer) Bytes() []byte  { return b.buf.Bytes() }

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

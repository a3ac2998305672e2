package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// actionMetadataSchemaDoc is the fixed schema ActionResponse.Valid checks
// its action_metadata document against (spec §3/§4.3).
const actionMetadataSchemaDoc = `{
  "type": "object",
  "required": ["requester", "module", "action", "request_params", "transaction_id", "request_id", "notify_outcome", "start", "status"],
  "properties": {
    "requester": {"type": "string"},
    "module": {"type": "string"},
    "action": {"type": "string"},
    "request_params": {},
    "transaction_id": {"type": "string"},
    "request_id": {"type": "string"},
    "notify_outcome": {"type": "boolean"},
    "start": {"type": "string"},
    "status": {"type": "string", "enum": ["running", "success", "failure"]},
    "end": {"type": "string"},
    "results": {},
    "results_are_valid": {"type": "boolean"},
    "execution_error": {"type": "string"}
  }
}`

// moduleMetaSchemaDoc is what an external module's discovery handshake
// (invoked with no arguments) must produce on stdout.
const moduleMetaSchemaDoc = `{
  "type": "object",
  "required": ["actions"],
  "properties": {
    "configuration": {},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "input", "output"],
        "properties": {
          "name": {"type": "string"},
          "input": {},
          "output": {},
          "behavior": {"type": "string"},
          "timeout": {"type": "string"}
        }
      }
    }
  }
}`

// SchemaValidator compiles and caches JSON-Schema documents used
// throughout the agent: the fixed action-metadata schema, the fixed
// module-metadata meta-schema, and every per-action input/output/
// configuration schema declared by a loaded module.
type SchemaValidator struct {
	once sync.Once

	actionMetadataSchema *gojsonschema.Schema
	moduleMetaSchema     *gojsonschema.Schema
	compileErr           error

	mu      sync.Mutex
	cache   map[string]*gojsonschema.Schema
	cacheEr map[string]error
}

// NewSchemaValidator constructs a validator. Compilation of the two fixed
// schemas is deferred to first use via sync.Once.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache:   make(map[string]*gojsonschema.Schema),
		cacheEr: make(map[string]error),
	}
}

func (v *SchemaValidator) compileFixed() {
	v.once.Do(func() {
		v.actionMetadataSchema, v.compileErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(actionMetadataSchemaDoc))
		if v.compileErr != nil {
			return
		}
		v.moduleMetaSchema, v.compileErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(moduleMetaSchemaDoc))
	})
}

// ValidateActionMetadata validates doc against the fixed action_metadata schema.
func (v *SchemaValidator) ValidateActionMetadata(doc map[string]any) error {
	v.compileFixed()
	if v.compileErr != nil {
		return fmt.Errorf("compiling action metadata schema: %w", v.compileErr)
	}
	return validateAgainst(v.actionMetadataSchema, doc)
}

// ValidateModuleMeta validates an external module's discovery document
// against the fixed meta-schema.
func (v *SchemaValidator) ValidateModuleMeta(doc map[string]any) error {
	v.compileFixed()
	if v.compileErr != nil {
		return fmt.Errorf("compiling module meta-schema: %w", v.compileErr)
	}
	return validateAgainst(v.moduleMetaSchema, doc)
}

// CompileSchema compiles and caches an arbitrary schema document (an
// action's input/output schema, or a module's configuration schema),
// keyed by key (typically "<module>.<action>.input" etc).
func (v *SchemaValidator) CompileSchema(key string, doc any) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.cache[key]; ok {
		return s, v.cacheEr[key]
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		v.cacheEr[key] = err
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	v.cache[key] = schema
	v.cacheEr[key] = err
	return schema, err
}

// Validate validates doc against an already-compiled schema, returning a
// *ValidationError describing every violation when invalid.
func (v *SchemaValidator) Validate(schema *gojsonschema.Schema, doc any) error {
	return validateAgainst(schema, doc)
}

func validateAgainst(schema *gojsonschema.Schema, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document for validation: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("running schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return &ValidationError{Reason: "document failed schema validation", Details: details}
}

package agent

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
)

// Registry is the named table of loaded modules, populated once at
// startup and read-only during request processing (spec §5).
type Registry struct {
	logger  *log.Logger
	modules map[string]Module
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "pxp-agent.registry: ", log.LstdFlags)
	}
	return &Registry{logger: logger, modules: make(map[string]Module)}
}

// LoadInternalModules registers ping, echo, and status. Grounded on
// original_source/lib/src/request_processor.cc's loadInternalModules.
func (r *Registry) LoadInternalModules(spoolDir string) {
	r.register(NewPingModule())
	r.register(NewEchoModule())
	r.register(NewStatusModule(spoolDir))
}

// LoadExternalModules scans modulesDir for executable candidates (no
// extension on POSIX, ".bat" on Windows; subdirectories ignored), runs
// each through metadata discovery, and applies any matching
// <modulesConfigDir>/<name>.conf file. A module that fails to load is
// logged and skipped (spec §4.2, §7 Module.LoadingError).
func (r *Registry) LoadExternalModules(validator *SchemaValidator, modulesDir, modulesConfigDir string) error {
	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &StorageError{Reason: "reading modules directory: " + err.Error()}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !isModuleCandidate(entry.Name()) {
			continue
		}
		path := filepath.Join(modulesDir, entry.Name())
		mod, err := LoadExternalModule(validator, path)
		if err != nil {
			r.logger.Printf("skipping module %q: %v", entry.Name(), err)
			continue
		}
		if modulesConfigDir != "" {
			mod.ApplyConfiguration(validator, modulesConfigDir)
			if mod.configErr != nil {
				r.logger.Printf("module %q: configuration rejected: %v", mod.Name(), mod.configErr)
			}
		}
		r.register(mod)
	}
	return nil
}

func isModuleCandidate(name string) bool {
	if runtime.GOOS == "windows" {
		return filepath.Ext(name) == ".bat"
	}
	return filepath.Ext(name) == ""
}

func (r *Registry) register(m Module) {
	r.modules[m.Name()] = m
	r.logger.Printf("loaded module %q (%s) with actions: %v", m.Name(), m.Type(), actionNames(m))
}

func actionNames(m Module) []string {
	names := make([]string, 0, len(m.Actions()))
	for _, a := range m.Actions() {
		names = append(names, a.Name)
	}
	return names
}

// Get returns the named module, or a *RegistryMissError if unknown.
func (r *Registry) Get(name string) (Module, error) {
	m, ok := r.modules[name]
	if !ok {
		return nil, &RegistryMissError{Reason: "unknown module: " + name}
	}
	return m, nil
}

// ConfigFor returns the named external module's resolved configuration
// blob. Internal modules, and external modules with no configuration
// file, return (nil, nil). An external module whose configuration file
// was rejected by its declared schema returns (nil, *ValidationError) —
// per SPEC_FULL.md §8 scenario 7, the module still ran with an empty
// configuration object; this only reports why.
func (r *Registry) ConfigFor(name string) (map[string]any, error) {
	m, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ext, ok := m.(*ExternalModule)
	if !ok {
		return nil, nil
	}
	if ext.configErr != nil {
		return nil, ext.configErr
	}
	cfg, ok := ext.ConfigFor()
	if !ok {
		return nil, nil
	}
	return cfg, nil
}

// ModuleSummary is a plain DTO describing one loaded module, used by
// operator-facing surfaces (e.g. adminserver) that should not need to
// depend on the Module interface directly.
type ModuleSummary struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Actions []string `json:"actions"`
}

// List returns a summary of every loaded module.
func (r *Registry) List() []ModuleSummary {
	out := make([]ModuleSummary, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, ModuleSummary{
			Name:    m.Name(),
			Type:    string(m.Type()),
			Actions: actionNames(m),
		})
	}
	return out
}

// LogSummary logs one line per loaded module with its action count,
// grounded on logLoadedModules() in the original source.
func (r *Registry) LogSummary() {
	for name, m := range r.modules {
		r.logger.Printf("module %q: %d action(s)", name, len(m.Actions()))
	}
}

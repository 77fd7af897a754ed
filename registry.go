package datasrc

import (
	"context"
	"fmt"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
)

// autoIDPrefix distinguishes identifiers generated for configuration entries
// that declare none.
const autoIDPrefix = "ds-"

// Registry maps data-source identifiers, optionally qualified by schema, to
// DataSources. A process-wide default instance backs the package-level
// functions; tests can build isolated instances with NewRegistry.
type Registry struct {
	mu          sync.Mutex
	sources     map[string]*DataSource
	cfg         *Config
	initialized bool
	nextAutoID  int
}

// NewRegistry returns an empty, independent registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*DataSource)}
}

var (
	defaultMu       sync.Mutex
	defaultRegistry = NewRegistry()
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRegistry
}

// ResetDefault replaces the process-wide registry with a fresh one, for test
// isolation. It does not disconnect the old registry's data sources.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = NewRegistry()
}

// SetConfig stores the configuration used for lazy initialization on the
// first Get miss.
func (r *Registry) SetConfig(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = &cfg
}

// Init registers one DataSource per configured (id, schema) pair. A source
// with declared schemas is registered once per schema; one without must name
// a database in its driver configuration or Init fails with a
// ConfigurationError.
func (r *Registry) Init(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = &cfg
	return r.initLocked()
}

func (r *Registry) initLocked() error {
	if r.cfg == nil {
		return &ConfigurationError{Op: "init", Err: fmt.Errorf("no configuration set")}
	}
	for _, dsc := range r.cfg.DataSources {
		if len(dsc.Schemas) == 0 {
			if _, err := r.registerLocked(dsc, ""); err != nil {
				return err
			}
			continue
		}
		for _, schema := range dsc.Schemas {
			if _, err := r.registerLocked(dsc, schema); err != nil {
				return err
			}
		}
	}
	r.initialized = true
	return nil
}

// Register binds a DataSource for the given configuration and schema. It is
// idempotent: when the computed identifier already exists the registered
// instance is returned unchanged and configuration differences are ignored.
func (r *Registry) Register(cfg DataSourceConfig, schema string) (*DataSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(cfg, schema)
}

func (r *Registry) registerLocked(cfg DataSourceConfig, schema string) (*DataSource, error) {
	base := cfg.ID
	if base == "" {
		r.nextAutoID++
		base = fmt.Sprintf("%s%d", autoIDPrefix, r.nextAutoID)
	}
	id := registryKey(base, schema)
	if ds, ok := r.sources[id]; ok {
		return ds, nil
	}
	provider, err := newProvider(cfg, schema)
	if err != nil {
		return nil, err
	}
	ds := newDataSource(id, cfg, schema, provider)
	r.sources[id] = ds
	return ds, nil
}

// Get looks up a DataSource: exact identifier first, then the normalized
// (identifier, schema) key. On a miss it runs the lazy initialization from
// configuration exactly once and retries, then fails with a NotFoundError.
func (r *Registry) Get(id string, schema ...string) (*DataSource, error) {
	sch := ""
	if len(schema) > 0 {
		sch = schema[0]
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if ds := r.lookupLocked(id, sch); ds != nil {
		return ds, nil
	}
	if !r.initialized && r.cfg != nil {
		if err := r.initLocked(); err != nil {
			return nil, err
		}
		if ds := r.lookupLocked(id, sch); ds != nil {
			return ds, nil
		}
	}
	return nil, &NotFoundError{ID: id, Schema: sch}
}

func (r *Registry) lookupLocked(id, schema string) *DataSource {
	if ds, ok := r.sources[id]; ok {
		return ds
	}
	if ds, ok := r.sources[registryKey(id, schema)]; ok {
		return ds
	}
	return nil
}

// Connect is Get followed by DataSource.Connect.
func (r *Registry) Connect(ctx context.Context, id string, schema ...string) (*Connection, error) {
	ds, err := r.Get(id, schema...)
	if err != nil {
		return nil, err
	}
	return ds.Connect(ctx)
}

// DisconnectAll disconnects the named data source, or every registered one
// when no identifier is given. All teardowns run concurrently and every data
// source is attempted; failures are collected and returned together.
func (r *Registry) DisconnectAll(ctx context.Context, id ...string) error {
	r.mu.Lock()
	targets := make([]*DataSource, 0, len(r.sources))
	if len(id) > 0 && id[0] != "" {
		ds := r.lookupLocked(id[0], "")
		if ds == nil {
			r.mu.Unlock()
			return &NotFoundError{ID: id[0]}
		}
		targets = append(targets, ds)
	} else {
		for _, ds := range r.sources {
			targets = append(targets, ds)
		}
	}
	r.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		merr  *multierror.Error
	)
	for _, ds := range targets {
		wg.Add(1)
		go func(ds *DataSource) {
			defer wg.Done()
			if err := ds.Disconnect(ctx); err != nil {
				errMu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("disconnect %s: %w", ds.ID(), err))
				errMu.Unlock()
			}
		}(ds)
	}
	wg.Wait()
	return merr.ErrorOrNil()
}

// registryKey normalizes a (base identifier, schema) pair. An empty schema
// is a valid key of its own, distinct from every non-empty schema.
func registryKey(base, schema string) string {
	if schema == "" {
		return base
	}
	return base + "." + schema
}

// Init initializes the default registry from cfg.
func Init(cfg Config) error { return Default().Init(cfg) }

// RegisterDataSource registers a data source in the default registry.
func RegisterDataSource(cfg DataSourceConfig, schema string) (*DataSource, error) {
	return Default().Register(cfg, schema)
}

// GetDataSource looks up a data source in the default registry.
func GetDataSource(id string, schema ...string) (*DataSource, error) {
	return Default().Get(id, schema...)
}

// Connect obtains a connection from a data source in the default registry.
func Connect(ctx context.Context, id string, schema ...string) (*Connection, error) {
	return Default().Connect(ctx, id, schema...)
}

// DisconnectAll disconnects one or all data sources in the default registry.
func DisconnectAll(ctx context.Context, id ...string) error {
	return Default().DisconnectAll(ctx, id...)
}

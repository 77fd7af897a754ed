package datasrc

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the engine-specific capability behind a DataSource: it owns the
// physical connections (pooled or dedicated) and executes the primitive
// operations. Exactly one implementation ships, for the MySQL family, but the
// contract is engine-agnostic and new kinds register through RegisterProvider.
type Provider interface {
	// Kind returns the engine identifier the provider registered under.
	Kind() string
	// Schema returns the schema this provider is bound to.
	Schema() string

	// Start acquires a physical connection, wraps it in a Connection, and
	// records it in the provider's open set.
	Start(ctx context.Context) (*Connection, error)
	// End releases a connection back to the pool (or closes it when pooling
	// is disabled) and removes it from the open set. Calling End on a
	// connection that was already removed is a no-op.
	End(conn *Connection) error
	// DisconnectAll ends every open connection and tears down the pool.
	// A later Start transparently recreates it.
	DisconnectAll(ctx context.Context) error

	Query(ctx context.Context, conn *Connection, query string, args ...any) ([]Row, error)
	Execute(ctx context.Context, conn *Connection, query string, args ...any) (ExecResult, error)
	BatchExecute(ctx context.Context, conn *Connection, blob string) []BatchResult

	Begin(ctx context.Context, conn *Connection) error
	Commit(ctx context.Context, conn *Connection) error
	Rollback(ctx context.Context, conn *Connection) error

	// OpenConnections snapshots the connections currently issued by Start
	// and not yet ended.
	OpenConnections() []*Connection
	// Ping verifies the provider can reach its database.
	Ping(ctx context.Context) error
}

// ProviderFactory builds a Provider for one (config, schema) binding.
type ProviderFactory func(cfg DataSourceConfig, schema string) (Provider, error)

var (
	providerMu        sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProvider makes a provider factory available under the given kind.
// Registering the same kind twice replaces the earlier factory.
func RegisterProvider(kind string, factory ProviderFactory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerFactories[kind] = factory
}

func newProvider(cfg DataSourceConfig, schema string) (Provider, error) {
	kind := cfg.kind()
	providerMu.RLock()
	factory, ok := providerFactories[kind]
	providerMu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Op: "new provider", Err: fmt.Errorf("unknown provider kind %q", kind)}
	}
	return factory(cfg, schema)
}

func (c DataSourceConfig) kind() string {
	if c.MySQL != nil {
		return KindMySQL
	}
	return ""
}

// KindMySQL selects the MySQL-family provider.
const KindMySQL = "mysql"

func init() {
	RegisterProvider(KindMySQL, newMySQLProvider)
}

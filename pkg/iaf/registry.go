package iaf

import (
	"context"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// factories is the process-wide provider_id -> AdapterFactory mapping,
// populated at startup by each adapter package's init() (spec §4.2/§9:
// "prefer compile-time registration over reflective discovery") and
// immutable thereafter.
var (
	factoriesMu sync.RWMutex
	factories   = map[string]AdapterFactory{}
)

// Register adds a provider's AdapterFactory to the process-wide registry.
// Called from adapter package init() functions.
func Register(providerID string, factory AdapterFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[providerID] = factory
}

// lookupFactory returns the registered factory for providerID, if any.
func lookupFactory(providerID string) (AdapterFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[providerID]
	return f, ok
}

// ConnectionInfo is the subset of storage.IntegrationConnection the
// registry needs to build an adapter instance.
type ConnectionInfo struct {
	ConnectionID string
	TenantID     string
	ProviderID   string
	AuthRef      string
	Status       string
}

// ConnectionStore resolves connection records by id.
type ConnectionStore interface {
	Get(ctx context.Context, connectionID string) (*ConnectionInfo, error)
}

// SecretStore is the KMS collaborator: resolves an opaque auth_ref/
// secret_ref handle to the live secret value (spec §1 scope: secret
// storage itself is an external collaborator).
type SecretStore interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Registry caches one Adapter instance per connection_id; instances must
// be safe for concurrent calls. The connection secret is resolved once,
// when an instance is built, and stays with the cached instance until
// Forget evicts it; it is not re-fetched per call.
type Registry struct {
	mu          sync.RWMutex
	instances   map[string]Adapter
	connections ConnectionStore
	secrets     SecretStore
	httpClient  *http.Client
}

// NewRegistry builds a Registry resolving connections via connections and
// secrets via secrets, constructing adapters with client for outbound HTTP.
func NewRegistry(connections ConnectionStore, secrets SecretStore, client *http.Client) *Registry {
	return &Registry{
		instances:   map[string]Adapter{},
		connections: connections,
		secrets:     secrets,
		httpClient:  client,
	}
}

// Get returns the cached Adapter for connectionID, constructing and
// caching one on first use.
func (r *Registry) Get(ctx context.Context, connectionID string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.instances[connectionID]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	conn, err := r.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	factory, ok := lookupFactory(conn.ProviderID)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrorTypeValidation, "no adapter registered for provider %s", conn.ProviderID)
	}

	secret, err := r.secrets.Resolve(ctx, conn.AuthRef)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeAuth, "failed to resolve connection secret")
	}

	adapter, err := factory(ConnectionContext{
		ConnectionID: conn.ConnectionID,
		TenantID:     conn.TenantID,
		ProviderID:   conn.ProviderID,
		AuthRef:      conn.AuthRef,
		Secret:       secret,
		Client:       r.httpClient,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.instances[connectionID] = adapter
	r.mu.Unlock()
	return adapter, nil
}

// Forget evicts a cached adapter instance, forcing the next Get to rebuild
// it (e.g. after the connection's secret is rotated).
func (r *Registry) Forget(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, connectionID)
}

// secretTTLCache is a short-TTL wrapper a SecretStore implementation may
// embed to avoid round-tripping to KMS on every call, per spec §5's "or
// cached with a short TTL" allowance.
type secretTTLCache struct {
	mu      sync.Mutex
	values  map[string]cachedSecret
	ttl     time.Duration
	backing SecretStore
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewSecretTTLCache wraps backing with an in-memory TTL cache.
func NewSecretTTLCache(backing SecretStore, ttl time.Duration) SecretStore {
	return &secretTTLCache{values: map[string]cachedSecret{}, ttl: ttl, backing: backing}
}

func (c *secretTTLCache) Resolve(ctx context.Context, ref string) (string, error) {
	c.mu.Lock()
	if cached, ok := c.values[ref]; ok && time.Now().Before(cached.expiresAt) {
		c.mu.Unlock()
		return cached.value, nil
	}
	c.mu.Unlock()

	value, err := c.backing.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[ref] = cachedSecret{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}

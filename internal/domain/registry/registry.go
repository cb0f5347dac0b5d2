// Package registry holds the active, validated model artifact per kind.
//
// All state lives in one immutable table behind an atomic pointer. Readers
// load the pointer and never lock; writers build a new table under a mutex
// and swap it in. A handle captured by a reader stays valid after a reload.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sphere/internal/domain/artifact"
	"github.com/okian/sphere/internal/domain/features"
	"github.com/okian/sphere/pkg/logger"
	"github.com/okian/sphere/pkg/metrics"
)

// Handle is an immutable reference to a loaded artifact.
type Handle struct {
	artifact   *artifact.Artifact
	generation uint64
	loadedAt   time.Time
}

// Artifact returns the artifact behind the handle.
func (h *Handle) Artifact() *artifact.Artifact { return h.artifact }

// Kind returns the model kind.
func (h *Handle) Kind() artifact.Kind { return h.artifact.Kind() }

// SchemaVersion returns the schema the artifact expects.
func (h *Handle) SchemaVersion() string { return h.artifact.SchemaVersion() }

// Version returns the artifact version.
func (h *Handle) Version() string { return h.artifact.Version() }

// Generation increases by one with every install.
func (h *Handle) Generation() uint64 { return h.generation }

// LoadedAt is when the handle was installed.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

type key struct {
	kind   artifact.Kind
	schema string
}

type table struct {
	active     map[artifact.Kind]*Handle
	byKey      map[key]*Handle
	generation uint64
}

// with returns a copy of t with h installed as active for its kind.
func (t *table) with(h *Handle) *table {
	next := &table{
		active:     make(map[artifact.Kind]*Handle, len(t.active)+1),
		byKey:      make(map[key]*Handle, len(t.byKey)+1),
		generation: h.generation,
	}
	for k, v := range t.active {
		next.active[k] = v
	}
	for k, v := range t.byKey {
		next.byKey[k] = v
	}
	next.active[h.Kind()] = h
	next.byKey[key{h.Kind(), h.SchemaVersion()}] = h
	return next
}

// Registry is the typed model artifact registry.
type Registry struct {
	current atomic.Pointer[table]
	mu      sync.Mutex

	source  Source
	catalog *features.Catalog
	logger  logger.Logger
	now     func() time.Time
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		catalog: features.Default(),
		logger:  logger.Get().Named("registry"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(&table{
		active: map[artifact.Kind]*Handle{},
		byKey:  map[key]*Handle{},
	})
	return r
}

// Resolve returns the active handle for kind. It never blocks.
func (r *Registry) Resolve(kind artifact.Kind) (*Handle, error) {
	if h, ok := r.current.Load().active[kind]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, kind)
}

// ResolveVersion returns the newest handle installed for (kind, schemaVersion),
// which may differ from the active one after a schema upgrade.
func (r *Registry) ResolveVersion(kind artifact.Kind, schemaVersion string) (*Handle, error) {
	if h, ok := r.current.Load().byKey[key{kind, schemaVersion}]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s@%s", ErrModelNotLoaded, kind, schemaVersion)
}

// Kinds lists kinds with an active handle.
func (r *Registry) Kinds() []artifact.Kind {
	t := r.current.Load()
	out := make([]artifact.Kind, 0, len(t.active))
	for k := range t.active {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load fetches kind from the source, validates it and makes it active.
func (r *Registry) Load(ctx context.Context, kind artifact.Kind) (*Handle, error) {
	a, err := r.fetch(ctx, kind)
	if err != nil {
		metrics.RecordRegistryReload(string(kind), "failed")
		r.logger.Error(ctx, "artifact load failed", logger.String("kind", string(kind)), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrModelNotLoaded, kind, err)
	}
	return r.install(ctx, a), nil
}

// Reload installs a decoded artifact as the active one for kind.
func (r *Registry) Reload(kind artifact.Kind, a *artifact.Artifact) error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact for %s", ErrModelNotLoaded, kind)
	}
	if a.Kind() != kind {
		metrics.RecordRegistryReload(string(kind), "rejected")
		return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, kind, a.Kind())
	}
	if _, err := r.catalog.Lookup(a.SchemaVersion()); err != nil {
		metrics.RecordRegistryReload(string(kind), "rejected")
		return fmt.Errorf("%s %s: %w", kind, a.Version(), err)
	}
	r.install(context.Background(), a)
	return nil
}

// Bootstrap loads every required kind. Any failure is fatal to readiness.
func (r *Registry) Bootstrap(ctx context.Context, required ...artifact.Kind) error {
	var errs []error
	for _, k := range required {
		if _, err := r.Load(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ready reports whether every kind has an active handle.
func (r *Registry) Ready(kinds ...artifact.Kind) bool {
	t := r.current.Load()
	for _, k := range kinds {
		if _, ok := t.active[k]; !ok {
			return false
		}
	}
	return true
}

// Watch polls the source every interval and reloads a kind when its artifact
// version changes. Failed fetches keep the current handle. It returns when
// ctx is done.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	if r.source == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Registry) poll(ctx context.Context) {
	for _, k := range r.Kinds() {
		cur, err := r.Resolve(k)
		if err != nil {
			continue
		}
		a, err := r.fetch(ctx, k)
		if err != nil {
			metrics.RecordRegistryReload(string(k), "failed")
			r.logger.Warn(ctx, "artifact refresh failed, keeping current",
				logger.String("kind", string(k)),
				logger.String("version", cur.Version()),
				logger.Error(err))
			continue
		}
		if a.Version() == cur.Version() {
			continue
		}
		r.install(ctx, a)
	}
}

func (r *Registry) fetch(ctx context.Context, kind artifact.Kind) (*artifact.Artifact, error) {
	if r.source == nil {
		return nil, ErrNoSource
	}
	desc, params, err := r.source.Fetch(ctx, kind)
	if err != nil {
		return nil, err
	}
	a, err := artifact.Decode(desc, params, artifact.WithCatalog(r.catalog))
	if err != nil {
		return nil, err
	}
	if a.Kind() != kind {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, kind, a.Kind())
	}
	return a, nil
}

func (r *Registry) install(ctx context.Context, a *artifact.Artifact) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	h := &Handle{artifact: a, generation: cur.generation + 1, loadedAt: r.now()}
	r.current.Store(cur.with(h))

	metrics.RecordRegistryReload(string(a.Kind()), "installed")
	metrics.UpdateRegistryActive(string(a.Kind()), h.generation, a.TrainedAt().Unix())
	r.logger.Info(ctx, "artifact installed",
		logger.String("kind", string(a.Kind())),
		logger.String("schema", a.SchemaVersion()),
		logger.String("version", a.Version()),
		logger.Int64("generation", int64(h.generation)))
	return h
}

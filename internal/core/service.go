package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"romekv/pkg/domain"
)

// runtime carries the collaborators shared by scopes, references, proxies and
// the persistence engine of one Service.
type runtime struct {
	driver   domain.Driver
	models   domain.ModelRegistry
	querier  Querier
	resolver *Resolver
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
}

// tag maps a type tag or model name to the schema's table tag. Unknown types
// keep their spelling so they surface as unresolved on load.
func (rt *runtime) tag(typ string) string {
	if schema, err := rt.models.Resolve(typ); err == nil {
		return schema.Table
	}
	return typ
}

// Service is the entry point of the object-graph layer. It owns the request
// scopes and exposes loading, construction, querying and saving of entities
// against one driver.
type Service struct {
	rt     *runtime
	scopes *ScopeRegistry
	engine *Engine
}

// NewService wires a service over driver and models.
func NewService(driver domain.Driver, models domain.ModelRegistry, opts ...Option) (*Service, error) {
	if driver == nil {
		return nil, errors.New("core: nil driver")
	}
	if models == nil {
		return nil, errors.New("core: nil model registry")
	}
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	rt := &runtime{
		driver:  driver,
		models:  models,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		clock:   cfg.clock,
	}
	rt.resolver = &Resolver{rt: rt}
	rt.querier = cfg.querier
	if rt.querier == nil {
		rt.querier = &DriverQuerier{rt: rt}
	}
	scopes, err := newScopeRegistry(rt, cfg.scopeLimit)
	if err != nil {
		return nil, fmt.Errorf("scope registry: %w", err)
	}
	return &Service{rt: rt, scopes: scopes, engine: &Engine{rt: rt}}, nil
}

// Driver returns the storage driver.
func (s *Service) Driver() domain.Driver { return s.rt.driver }

// Registry returns the model registry.
func (s *Service) Registry() domain.ModelRegistry { return s.rt.models }

// Scopes returns the request scope registry.
func (s *Service) Scopes() *ScopeRegistry { return s.scopes }

// Engine returns the persistence engine.
func (s *Service) Engine() *Engine { return s.engine }

// OpenScope starts a request scope with a fresh identity cache.
func (s *Service) OpenScope(ctx context.Context) *Scope {
	scope := s.scopes.Open(ctx)
	s.rt.logger.Debug("request scope opened", "scope", scope.ID().String())
	return scope
}

// CloseScope disposes the scope and its identity cache.
func (s *Service) CloseScope(scope *Scope) {
	if scope == nil {
		return
	}
	if !s.scopes.Close(scope.ID()) {
		scope.release()
	}
}

// Scope returns a live scope by id.
func (s *Service) Scope(id uuid.UUID) (*Scope, bool) { return s.scopes.Get(id) }

// Ref returns the lazy reference for (typ, id) in scope.
func (s *Service) Ref(scope *Scope, typ string, id int64) *LazyRef {
	return scope.Ref(typ, id)
}

// Get materializes (typ, id) in scope.
func (s *Service) Get(ctx context.Context, scope *Scope, typ string, id int64) (*Entity, error) {
	return scope.Ref(typ, id).Materialize(ctx)
}

// New constructs an empty, unsaved entity of the named type bound to scope.
// It enters the identity cache once saved.
func (s *Service) New(scope *Scope, typ string) (*Entity, error) {
	schema, err := s.rt.models.Resolve(typ)
	if err != nil {
		return nil, err
	}
	return newEntity(schema, scope), nil
}

// Save persists obj and every new object reachable from it.
func (s *Service) Save(ctx context.Context, scope *Scope, obj Object) (SaveReport, error) {
	return s.engine.Save(ctx, scope, obj)
}

// Update sets values on obj and saves it.
func (s *Service) Update(ctx context.Context, scope *Scope, obj Object, values map[string]any) (SaveReport, error) {
	return s.engine.Update(ctx, scope, obj, values)
}

// SoftDelete removes obj from its type's key index.
func (s *Service) SoftDelete(ctx context.Context, obj Object) error {
	return s.engine.SoftDelete(ctx, obj)
}

// Query starts a query over typ in scope.
func (s *Service) Query(scope *Scope, typ string) *Query {
	return &Query{rt: s.rt, scope: scope, typ: typ}
}

// Close closes the driver.
func (s *Service) Close() error {
	return s.rt.driver.Close()
}

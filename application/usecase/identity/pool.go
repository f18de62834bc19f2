package identity

import (
	"context"
	"sync"
	"time"

	"github.com/securemedai/portal/application/port/inbound"
	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

const (
	defaultIdleTTL = 30 * time.Minute
	defaultSettle  = 250 * time.Millisecond
)

type poolEntry struct {
	resolver *Resolver
	lastUsed time.Time
}

// Pool keeps one resolver per browser session. A resolver is created on the
// session's first request and discarded on logout or after sitting idle.
type Pool struct {
	store     outbound.SessionStore
	federated outbound.FederatedSessionStore
	logger    outbound.Logger
	idleTTL   time.Duration
	settle    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*poolEntry
}

var _ inbound.IdentityResolver = (*Pool)(nil)

type PoolConfig struct {
	Store     outbound.SessionStore
	Federated outbound.FederatedSessionStore
	Logger    outbound.Logger
	IdleTTL   time.Duration
	// Settle bounds how long Acquire waits for a fresh resolver to leave
	// Loading before reporting the Loading state.
	Settle time.Duration
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	} else if cfg.Settle == 0 {
		cfg.Settle = defaultSettle
	}
	return &Pool{
		store:     cfg.Store,
		federated: cfg.Federated,
		logger:    cfg.Logger,
		idleTTL:   cfg.IdleTTL,
		settle:    cfg.Settle,
		now:       time.Now,
		entries:   make(map[string]*poolEntry),
	}
}

// Acquire returns the identity of the session as it reads right now. A
// resolver is pooled only while the session holds credentials or a provider
// session; anonymous browsers never start one.
func (p *Pool) Acquire(ctx context.Context, sessionID string) entity.IdentityState {
	if sessionID == "" {
		return entity.UnauthenticatedIdentity()
	}

	p.mu.Lock()
	e, ok := p.entries[sessionID]
	if ok {
		e.lastUsed = p.now()
	}
	p.mu.Unlock()

	if !ok {
		if !p.hasState(ctx, sessionID) {
			return entity.UnauthenticatedIdentity()
		}
		e, ok = p.register(sessionID)
		if !ok {
			_ = e.resolver.Start(ctx)
		}
	}

	if p.settle > 0 && e.resolver.State().Loading {
		timer := time.NewTimer(p.settle)
		defer timer.Stop()
		select {
		case <-e.resolver.Resolved():
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	state := e.resolver.Current(ctx)
	if !state.Loading && !state.IsAuthenticated {
		p.drop(sessionID, e)
	}
	return state
}

// register returns the pooled entry for sessionID, creating it when absent.
// ok reports whether the entry already existed.
func (p *Pool) register(sessionID string) (*poolEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[sessionID]; ok {
		e.lastUsed = p.now()
		return e, true
	}
	e := &poolEntry{
		resolver: NewResolver(sessionID, p.store, p.federated, p.logger),
		lastUsed: p.now(),
	}
	p.entries[sessionID] = e
	return e, false
}

// hasState reports whether the session holds anything a resolver must
// watch. Lookup failures count as state so the resolver logs and resolves.
func (p *Pool) hasState(ctx context.Context, sessionID string) bool {
	sess, err := p.store.Get(ctx, sessionID)
	if err != nil || !sess.IsEmpty() {
		return true
	}
	if p.federated == nil {
		return false
	}
	cred, err := p.federated.Load(ctx, sessionID)
	return err != nil || cred != nil
}

// drop removes e if it is still the pooled resolver for sessionID.
func (p *Pool) drop(sessionID string, e *poolEntry) {
	p.mu.Lock()
	current, ok := p.entries[sessionID]
	if ok && current == e {
		delete(p.entries, sessionID)
	}
	p.mu.Unlock()
	if ok && current == e {
		e.resolver.Stop()
	}
}

// Invalidate re-reads the store for a session that changed underneath its
// resolver, e.g. after a 401 teardown.
func (p *Pool) Invalidate(ctx context.Context, sessionID string) {
	p.mu.Lock()
	e, ok := p.entries[sessionID]
	p.mu.Unlock()
	if ok {
		e.resolver.Refresh(ctx)
	}
}

func (p *Pool) Discard(sessionID string) {
	p.mu.Lock()
	e, ok := p.entries[sessionID]
	delete(p.entries, sessionID)
	p.mu.Unlock()
	if ok {
		e.resolver.Stop()
	}
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Run evicts idle resolvers until ctx is done, then stops all of them.
func (p *Pool) Run(ctx context.Context) {
	interval := p.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopAll()
			return
		case <-ticker.C:
			if n := p.EvictIdle(); n > 0 {
				p.logger.Debug(ctx, "Evicted idle identity resolvers", map[string]interface{}{"count": n})
			}
		}
	}
}

func (p *Pool) EvictIdle() int {
	cutoff := p.now().Add(-p.idleTTL)

	p.mu.Lock()
	var idle []*Resolver
	for id, e := range p.entries {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.resolver)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, r := range idle {
		r.Stop()
	}
	return len(idle)
}

func (p *Pool) stopAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	for _, e := range entries {
		e.resolver.Stop()
	}
}

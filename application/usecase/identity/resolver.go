// Package identity resolves who a browser session belongs to, combining the
// session store with the federated provider's session-change events.
package identity

import (
	"context"
	"sync"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

// Resolver holds the identity state of one browser session. It starts in
// Loading and leaves it exactly once; later transitions are idempotent
// re-evaluations. Once resolved, Current derives the identity from a fresh
// store read, so the cached state is never served past a single call.
type Resolver struct {
	sessionID string
	store     outbound.SessionStore
	federated outbound.FederatedSessionStore
	logger    outbound.Logger

	// transition serializes each store read with the state it produces.
	transition sync.Mutex

	mu       sync.RWMutex
	state    entity.IdentityState
	revoked  bool
	started  bool
	stopped  bool
	resolved chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewResolver creates a resolver; federated may be nil.
func NewResolver(sessionID string, store outbound.SessionStore, federated outbound.FederatedSessionStore, log outbound.Logger) *Resolver {
	return &Resolver{
		sessionID: sessionID,
		store:     store,
		federated: federated,
		logger:    log,
		state:     entity.LoadingIdentity(),
		resolved:  make(chan struct{}),
	}
}

// Start reads the store and, when a federated provider is configured,
// subscribes to its session events. A stored credential stays Loading until
// the provider's first emission confirms or revokes it.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	r.transition.Lock()
	sess, err := r.store.Get(ctx, r.sessionID)
	if err != nil {
		r.logger.Error(ctx, "Identity resolver failed to read session", err, r.fields())
		r.apply(entity.UnauthenticatedIdentity())
		r.transition.Unlock()
		return err
	}

	if r.federated == nil {
		r.apply(entity.IdentityFromSession(sess))
		r.transition.Unlock()
		return nil
	}
	if !sess.Authenticated() {
		r.apply(entity.UnauthenticatedIdentity())
	}
	r.transition.Unlock()

	watchCtx, cancel := context.WithCancel(context.Background())
	events, err := r.federated.Watch(watchCtx, r.sessionID)
	if err != nil {
		cancel()
		r.logger.Error(ctx, "Identity resolver failed to subscribe to federated events", err, r.fields())
		r.apply(entity.IdentityFromSession(sess))
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.listen(watchCtx, events, done)
	return nil
}

func (r *Resolver) listen(ctx context.Context, events <-chan entity.FederatedEvent, done chan struct{}) {
	defer close(done)
	for ev := range events {
		r.handle(ctx, ev)
	}
}

// handle treats every emission as a fresh transition. An active provider
// session means the stored session is trusted as written at login; an
// inactive one ends any provider-backed session regardless of stale content.
func (r *Resolver) handle(ctx context.Context, ev entity.FederatedEvent) {
	if r.isStopped() {
		return
	}

	r.transition.Lock()
	defer r.transition.Unlock()

	sess, err := r.store.Get(ctx, r.sessionID)
	if err != nil {
		r.logger.Error(ctx, "Identity resolver failed to read session", err, r.fields())
		r.apply(entity.UnauthenticatedIdentity())
		return
	}

	if !ev.Active && sess.Federated && r.providerActive(ctx) {
		// A later sign-in already replaced the session this event ended.
		ev.Active = true
	}
	if ev.Active || !sess.Federated {
		r.setRevoked(false)
		r.apply(entity.IdentityFromSession(sess))
		return
	}

	if err := r.store.Clear(ctx, r.sessionID); err != nil {
		r.logger.Error(ctx, "Identity resolver failed to clear session", err, r.fields())
	}
	r.setRevoked(true)
	outbound.LogAuthEvent(ctx, r.logger, "federated_session_ended", r.sessionID, "", true, nil)
	r.apply(entity.UnauthenticatedIdentity())
}

// Refresh re-derives the identity from the store after an explicit login
// or logout.
func (r *Resolver) Refresh(ctx context.Context) {
	if r.isStopped() {
		return
	}
	r.transition.Lock()
	defer r.transition.Unlock()
	r.setRevoked(false)
	r.reread(ctx)
}

// Current returns Loading until the resolver has resolved, then the identity
// of the store as it reads right now. A provider session that ended stays
// ended even if clearing the store failed.
func (r *Resolver) Current(ctx context.Context) entity.IdentityState {
	if state := r.State(); state.Loading || r.isStopped() {
		return state
	}
	r.transition.Lock()
	defer r.transition.Unlock()
	return r.reread(ctx)
}

// reread must be called with transition held.
func (r *Resolver) reread(ctx context.Context) entity.IdentityState {
	sess, err := r.store.Get(ctx, r.sessionID)
	if err != nil {
		r.logger.Error(ctx, "Identity resolver failed to read session", err, r.fields())
		state := entity.UnauthenticatedIdentity()
		r.apply(state)
		return state
	}
	state := entity.IdentityFromSession(sess)
	r.mu.RLock()
	revoked := r.revoked
	r.mu.RUnlock()
	if revoked && sess.Federated {
		state = entity.UnauthenticatedIdentity()
	}
	r.apply(state)
	return state
}

func (r *Resolver) providerActive(ctx context.Context) bool {
	cred, err := r.federated.Load(ctx, r.sessionID)
	if err != nil {
		r.logger.Warn(ctx, "Identity resolver failed to load federated session", r.fields())
		return false
	}
	return cred != nil
}

func (r *Resolver) setRevoked(v bool) {
	r.mu.Lock()
	r.revoked = v
	r.mu.Unlock()
}

func (r *Resolver) State() entity.IdentityState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Resolved is closed once the resolver has left Loading.
func (r *Resolver) Resolved() <-chan struct{} {
	return r.resolved
}

// Stop cancels the subscription and waits for the listener to exit. No
// transition is applied afterwards.
func (r *Resolver) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Resolver) apply(state entity.IdentityState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.state = state
	if !state.Loading {
		select {
		case <-r.resolved:
		default:
			close(r.resolved)
		}
	}
}

func (r *Resolver) isStopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

func (r *Resolver) fields() map[string]interface{} {
	return map[string]interface{}{"session_id": outbound.ShortID(r.sessionID)}
}

package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/outfred-gateway/internal/metrics"
)

// Registry owns one started Container per browser session id.
type Registry struct {
	deps Deps
	now  func() time.Time

	mu         sync.Mutex
	containers map[string]*entry
}

type entry struct {
	c        *Container
	lastSeen time.Time
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:       deps,
		now:        time.Now,
		containers: make(map[string]*entry),
	}
}

// Get returns the container for scope, creating and starting it if needed,
// and waits until its initial session restore finished or ctx is done.
// Only flows that issued the scope cookie themselves should call it.
func (r *Registry) Get(ctx context.Context, scope string) *Container {
	r.mu.Lock()
	e, ok := r.containers[scope]
	if !ok {
		e = &entry{c: NewContainer(scope, r.deps)}
		r.containers[scope] = e
		metrics.ActiveContainers.Inc()
		// The restore outlives the request that triggered it.
		e.c.Start(context.WithoutCancel(ctx))
	}
	e.lastSeen = r.now()
	r.mu.Unlock()

	return wait(ctx, e.c)
}

// Restore returns the container for a scope presented by the client. A new
// container is only started when persisted auth state exists for the scope,
// so made-up session ids never allocate anything.
func (r *Registry) Restore(ctx context.Context, scope string) (*Container, bool) {
	r.mu.Lock()
	e, ok := r.containers[scope]
	if ok {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
	if ok {
		return wait(ctx, e.c), true
	}

	if r.deps.Sessions == nil || !r.deps.Sessions.HasSession(ctx, scope) {
		return nil, false
	}
	return r.Get(ctx, scope), true
}

func wait(ctx context.Context, c *Container) *Container {
	select {
	case <-c.Ready():
	case <-ctx.Done():
	}
	return c
}

// Lookup returns an existing container without creating one.
func (r *Registry) Lookup(scope string) (*Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.containers[scope]
	if !ok {
		return nil, false
	}
	return e.c, true
}

// Remove closes and forgets the container for scope.
func (r *Registry) Remove(scope string) {
	r.mu.Lock()
	e, ok := r.containers[scope]
	delete(r.containers, scope)
	r.mu.Unlock()

	if ok {
		e.c.Close()
		metrics.ActiveContainers.Dec()
	}
}

// Evict closes every container not used for idle and returns how many were
// dropped. Signed-in scopes come back through Restore on their next request.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Container
	for scope, e := range r.containers {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.c)
			delete(r.containers, scope)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
		metrics.ActiveContainers.Dec()
	}
	return len(stale)
}

// RunJanitor evicts idle containers every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 && r.deps.Logger != nil {
				r.deps.Logger.Debug("evicted idle auth containers", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

func (r *Registry) Close() {
	r.mu.Lock()
	containers := r.containers
	r.containers = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range containers {
		e.c.Close()
		metrics.ActiveContainers.Dec()
	}
}

package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"snapgram/internal/observability"
	"snapgram/internal/state"
)

// StoreFactory builds the state owner of one client.
type StoreFactory func(clientID string) *state.Store

type clientEntry struct {
	store    *state.Store
	lastSeen time.Time
	once     sync.Once
	initErr  error
}

// Registry maps client ids to their state owners. Entries are created and
// initialized on first use and dropped after idleTTL without requests.
// Eviction only forgets the in-memory state; the persisted session stays.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	factory StoreFactory
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry returns a registry. A positive idleTTL starts a reaper goroutine
// that must be stopped with Shutdown.
func NewRegistry(factory StoreFactory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = observability.Logger()
	}
	r := &Registry{
		clients: make(map[string]*clientEntry),
		factory: factory,
		idleTTL: idleTTL,
		now:     time.Now,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.reaperLoop()
	return r
}

// Get returns the state owner of clientID, building and initializing it when
// the client is new.
func (r *Registry) Get(ctx context.Context, clientID string) (*state.Store, error) {
	r.mu.Lock()
	e, ok := r.clients[clientID]
	if !ok {
		e = &clientEntry{store: r.factory(clientID)}
		r.clients[clientID] = e
		observability.ActiveClients.Set(float64(len(r.clients)))
	}
	e.lastSeen = r.now()
	r.mu.Unlock()

	e.once.Do(func() {
		e.initErr = e.store.Init(ctx)
	})
	if e.initErr != nil {
		r.mu.Lock()
		if r.clients[clientID] == e {
			delete(r.clients, clientID)
			observability.ActiveClients.Set(float64(len(r.clients)))
		}
		r.mu.Unlock()
		return nil, e.initErr
	}
	return e.store, nil
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// EvictIdle drops every client unused for longer than the idle ttl and
// returns how many were dropped.
func (r *Registry) EvictIdle() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []string
	for id, e := range r.clients {
		if e.lastSeen.Before(cutoff) {
			delete(r.clients, id)
			evicted = append(evicted, id)
		}
	}
	observability.ActiveClients.Set(float64(len(r.clients)))
	r.mu.Unlock()

	for _, id := range evicted {
		observability.ClientEvictions.Inc()
		r.logger.Debug("client evicted", slog.String("client_id", id))
	}
	return len(evicted)
}

// Shutdown stops the reaper. It is safe to call more than once.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) reaperLoop() {
	defer close(r.done)
	if r.idleTTL <= 0 {
		<-r.stopCh
		return
	}
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

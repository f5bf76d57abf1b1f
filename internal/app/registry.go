package app

import (
	"context"
	"sync"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
)

// PresenceObserver is told about identities that became reachable or
// unreachable. It runs after the registry lock is released.
type PresenceObserver interface {
	UserOnline(ctx context.Context, uid domain.UserID)
	UserOffline(ctx context.Context, uid domain.UserID)
}

// Registry is the presence registry: a dual index between user identity and
// live connection. Both maps are only ever changed together under mu.
type Registry struct {
	mu     sync.Mutex
	byUser map[domain.UserID]core.SignalConnection
	byConn map[core.ConnID]domain.UserID

	observer PresenceObserver
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]core.SignalConnection),
		byConn: make(map[core.ConnID]domain.UserID),
	}
}

// Observe installs the presence observer. Call before serving connections.
func (r *Registry) Observe(o PresenceObserver) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Register binds uid to conn. A previous connection of uid loses its reverse
// entry (last write wins); a previous identity claimed on conn is freed.
func (r *Registry) Register(ctx context.Context, uid domain.UserID, conn core.SignalConnection) {
	cid := conn.ID()

	r.mu.Lock()
	if prev, ok := r.byUser[uid]; ok && prev.ID() != cid {
		delete(r.byConn, prev.ID())
		log.Info().Str("module", "app.registry").Str("user", uid.String()).Str("old_conn", string(prev.ID())).Str("conn", string(cid)).Msg("replaced connection")
	}
	var evicted domain.UserID
	if prevUser, ok := r.byConn[cid]; ok && prevUser != uid {
		if c, ok := r.byUser[prevUser]; ok && c.ID() == cid {
			delete(r.byUser, prevUser)
		}
		evicted = prevUser
	}
	r.byUser[uid] = conn
	r.byConn[cid] = uid
	obs := r.observer
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", uid.String()).Str("conn", string(cid)).Msg("registered")

	if obs == nil {
		return
	}
	if evicted != "" {
		obs.UserOffline(ctx, evicted)
	}
	obs.UserOnline(ctx, uid)
}

// Resolve returns the live connection of uid.
func (r *Registry) Resolve(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[uid]
	return c, ok
}

// IdentityOf returns the identity currently bound to a connection.
func (r *Registry) IdentityOf(cid core.ConnID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.byConn[cid]
	return uid, ok
}

// Unregister removes conn in both directions and returns the freed identity.
// A connection already superseded by a reconnect frees nothing.
func (r *Registry) Unregister(ctx context.Context, conn core.SignalConnection) (domain.UserID, bool) {
	cid := conn.ID()

	r.mu.Lock()
	uid, ok := r.byConn[cid]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byConn, cid)
	if c, bound := r.byUser[uid]; bound && c.ID() == cid {
		delete(r.byUser, uid)
	}
	obs := r.observer
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", uid.String()).Str("conn", string(cid)).Msg("unregistered")

	if obs != nil {
		obs.UserOffline(ctx, uid)
	}
	return uid, true
}

// Online is the number of reachable identities.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

package app

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Resolver is the read side of the registry.
type Resolver interface {
	Resolve(uid domain.UserID) (core.SignalConnection, bool)
}

// Notifier pushes online/offline events to the accepted contacts of a user
// that are themselves reachable.
type Notifier struct {
	Directory core.ContactsDirectory
	Resolver  Resolver
	// Store is optional.
	Store core.PresenceStore
}

func NewNotifier(dir core.ContactsDirectory, res Resolver, store core.PresenceStore) *Notifier {
	return &Notifier{Directory: dir, Resolver: res, Store: store}
}

func (n *Notifier) UserOnline(ctx context.Context, uid domain.UserID) {
	if n.Store != nil {
		if err := n.Store.MarkOnline(ctx, uid); err != nil {
			log.Error().Err(err).Str("module", "app.notifier").Str("user", uid.String()).Msg("mark online")
		}
	}
	n.broadcast(ctx, domain.NewPresenceEvent(uid, true))
}

func (n *Notifier) UserOffline(ctx context.Context, uid domain.UserID) {
	if n.Store != nil {
		if err := n.Store.MarkOffline(ctx, uid); err != nil {
			log.Error().Err(err).Str("module", "app.notifier").Str("user", uid.String()).Msg("mark offline")
		}
	}
	n.broadcast(ctx, domain.NewPresenceEvent(uid, false))
}

func (n *Notifier) broadcast(ctx context.Context, ev domain.PresenceEvent) {
	contacts, err := n.Directory.AcceptedContacts(ctx, ev.UserID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Str("user", ev.UserID.String()).Msg("contacts lookup failed")
		return
	}
	contacts = lo.Without(lo.Uniq(contacts), ev.UserID)
	if len(contacts) == 0 {
		return
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Msg("marshal presence")
		return
	}

	sent := 0
	for _, cid := range contacts {
		conn, ok := n.Resolver.Resolve(cid)
		if !ok {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.notifier").Str("contact", cid.String()).Msg("presence not delivered")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.notifier").Str("user", ev.UserID.String()).Str("type", string(ev.Type)).Int("contacts", len(contacts)).Int("sent", sent).Msg("presence broadcast")
}

//go:generate go run go.uber.org/mock/mockgen -source=directory_iface.go -destination=../mocks/mock_directory.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/Tandem/internal/domain"
)

// ContactsDirectory is the external source of accepted contact relations.
type ContactsDirectory interface {
	AcceptedContacts(ctx context.Context, userID domain.UserID) ([]domain.UserID, error)
}

// PresenceStore persists the last known reachability of a user.
type PresenceStore interface {
	MarkOnline(ctx context.Context, userID domain.UserID) error
	MarkOffline(ctx context.Context, userID domain.UserID) error
}

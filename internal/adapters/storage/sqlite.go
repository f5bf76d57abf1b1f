package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Tandem/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var (
	ErrSelfContact     = errors.New("cannot add yourself as a contact")
	ErrContactExists   = errors.New("contact request already exists")
	ErrRequestNotFound = errors.New("contact request not found")
)

type ContactStatus string

const (
	StatusPending  ContactStatus = "pending"
	StatusAccepted ContactStatus = "accepted"
)

// Contact is a row of the contact list joined with the contact's presence.
type Contact struct {
	UserID      domain.UserID `json:"userId"`
	Status      ContactStatus `json:"status"`
	Online      bool          `json:"isOnline"`
	LastSeen    time.Time     `json:"lastSeen"`
	RequestedAt time.Time     `json:"requestedAt"`
}

// Store keeps users and the contact graph in SQLite. It is the server's
// contacts directory and presence store.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; WAL lets readers from other processes through
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		`CREATE TABLE IF NOT EXISTS users (
			id        TEXT PRIMARY KEY,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_seen INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			contact_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			status       TEXT NOT NULL DEFAULT 'pending',
			requested_at INTEGER NOT NULL,
			accepted_at  INTEGER,
			UNIQUE(user_id, contact_id),
			CHECK (user_id != contact_id)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_contacts_user_id ON contacts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_contacts_contact_id ON contacts(contact_id)",
		"CREATE INDEX IF NOT EXISTS idx_contacts_status ON contacts(status)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	log.Info().Str("module", "storage").Str("path", path).Msg("database ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AcceptedContacts returns the other side of every accepted contact edge
// touching uid, in either direction.
func (s *Store) AcceptedContacts(ctx context.Context, uid domain.UserID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN user_id = ?1 THEN contact_id ELSE user_id END
		FROM contacts
		WHERE (user_id = ?1 OR contact_id = ?1) AND status = 'accepted'`, string(uid))
	if err != nil {
		return nil, fmt.Errorf("accepted contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(id))
	}
	return out, rows.Err()
}

func (s *Store) MarkOnline(ctx context.Context, uid domain.UserID) error {
	return s.setOnline(ctx, uid, true)
}

func (s *Store) MarkOffline(ctx context.Context, uid domain.UserID) error {
	return s.setOnline(ctx, uid, false)
}

func (s *Store) setOnline(ctx context.Context, uid domain.UserID, online bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, is_online, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_online = excluded.is_online, last_seen = excluded.last_seen`,
		string(uid), online, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark presence: %w", err)
	}
	return nil
}

// Presence reports the persisted online flag and last-seen time of uid.
func (s *Store) Presence(ctx context.Context, uid domain.UserID) (online bool, lastSeen time.Time, err error) {
	var ms int64
	err = s.db.QueryRowContext(ctx, `SELECT is_online, last_seen FROM users WHERE id = ?`, string(uid)).Scan(&online, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, err
	}
	return online, time.UnixMilli(ms), nil
}

// RequestContact records a pending request from -> to.
func (s *Store) RequestContact(ctx context.Context, from, to domain.UserID) error {
	if from == to {
		return ErrSelfContact
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range []domain.UserID{from, to} {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, string(id)); err != nil {
			return err
		}
	}

	var n int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM contacts
		WHERE (user_id = ?1 AND contact_id = ?2) OR (user_id = ?2 AND contact_id = ?1)`,
		string(from), string(to)).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrContactExists
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contacts (user_id, contact_id, status, requested_at) VALUES (?, ?, 'pending', ?)`,
		string(from), string(to), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("request contact: %w", err)
	}
	return tx.Commit()
}

// AcceptContact accepts the pending request that `from` sent to `me`.
func (s *Store) AcceptContact(ctx context.Context, me, from domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET status = 'accepted', accepted_at = ?
		WHERE user_id = ? AND contact_id = ? AND status = 'pending'`,
		time.Now().UnixMilli(), string(from), string(me))
	if err != nil {
		return fmt.Errorf("accept contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// Contacts lists the accepted contacts of uid with their presence.
func (s *Store) Contacts(ctx context.Context, uid domain.UserID) ([]Contact, error) {
	return s.list(ctx, `
		SELECT u.id, c.status, u.is_online, u.last_seen, c.requested_at
		FROM contacts c
		JOIN users u ON u.id = CASE WHEN c.user_id = ?1 THEN c.contact_id ELSE c.user_id END
		WHERE (c.user_id = ?1 OR c.contact_id = ?1) AND c.status = 'accepted'
		ORDER BY u.id`, uid)
}

// PendingRequests lists requests waiting for uid to accept them.
func (s *Store) PendingRequests(ctx context.Context, uid domain.UserID) ([]Contact, error) {
	return s.list(ctx, `
		SELECT u.id, c.status, u.is_online, u.last_seen, c.requested_at
		FROM contacts c
		JOIN users u ON u.id = c.user_id
		WHERE c.contact_id = ?1 AND c.status = 'pending'
		ORDER BY c.requested_at DESC`, uid)
}

func (s *Store) list(ctx context.Context, query string, uid domain.UserID) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, string(uid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		var (
			c          Contact
			id, status string
			seen, req  int64
		)
		if err := rows.Scan(&id, &status, &c.Online, &seen, &req); err != nil {
			return nil, err
		}
		c.UserID = domain.UserID(id)
		c.Status = ContactStatus(status)
		if seen > 0 {
			c.LastSeen = time.UnixMilli(seen)
		}
		c.RequestedAt = time.UnixMilli(req)
		out = append(out, c)
	}
	return out, rows.Err()
}

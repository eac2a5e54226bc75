// Package storage is the shared key-value store session state lives in.
// Every open instance of the client talks to the same backing database and
// observes the others' writes through a [Broker], mirroring browser
// localStorage plus its storage events.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Well-known session keys.
const (
	TokenKey    = "websess.token"
	RenewingKey = "websess.renewing"
)

// Store is one instance's view of the shared database. Each Store carries
// its own origin ID; its writes are broadcast to every other Store sharing
// the same broker, never back to itself.
type Store struct {
	db     *sql.DB
	broker *Broker
	origin string
}

// New returns a Store over db, publishing changes through broker.
func New(db *sql.DB, broker *Broker) *Store {
	return &Store{
		db:     db,
		broker: broker,
		origin: uuid.NewString(),
	}
}

// NewSibling returns a second view over the same database and broker with
// its own origin, the way another browser tab shares localStorage.
func NewSibling(s *Store) *Store {
	return New(s.db, s.broker)
}

// Origin returns this store's writer ID.
func (s *Store) Origin() string {
	return s.origin
}

// Subscribe starts delivering other writers' change events to the returned
// channel.
func (s *Store) Subscribe() <-chan Event {
	return s.broker.Subscribe(s.origin)
}

// Unsubscribe stops event delivery and closes the channel returned by
// [Store.Subscribe].
func (s *Store) Unsubscribe() {
	s.broker.Unsubscribe(s.origin)
}

// Get returns the value for key, reporting whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes key and broadcasts the change.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value,
		 updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	s.broker.Publish(Event{Key: key, Value: &value, Origin: s.origin})
	return nil
}

// Remove deletes key and broadcasts the removal.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	s.broker.Publish(Event{Key: key, Origin: s.origin})
	return nil
}

// Clear empties the store and broadcasts a whole-store clear event.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	s.broker.Publish(Event{Origin: s.origin})
	return nil
}

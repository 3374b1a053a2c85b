// Package session persists the currently-authenticated user snapshot for one client.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"snapgram/internal/models"
	"snapgram/internal/observability"
	"snapgram/internal/storage"
)

// Key is the fixed key the snapshot is stored under inside a client namespace.
const Key = "currentUser"

// Store reads and writes one serialized models.User.
type Store struct {
	kv        storage.KV
	namespace string
	logger    *slog.Logger
}

// New returns a session store over kv. An empty namespace stores the snapshot under Key itself.
func New(kv storage.KV, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = observability.Logger()
	}
	return &Store{kv: kv, namespace: namespace, logger: logger}
}

// StorageKey returns the full key used in the underlying KV.
func (s *Store) StorageKey() string {
	if s.namespace == "" {
		return Key
	}
	return s.namespace + ":" + Key
}

// Save overwrites the snapshot.
func (s *Store) Save(ctx context.Context, u models.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		observability.SessionWrites.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.StorageKey(), data); err != nil {
		observability.SessionWrites.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save session snapshot: %w", err)
	}
	observability.SessionWrites.WithLabelValues("save", "ok").Inc()
	return nil
}

// Load returns the stored snapshot. A corrupt snapshot is logged and reported as absent.
func (s *Store) Load(ctx context.Context) (models.User, bool, error) {
	data, ok, err := s.kv.Get(ctx, s.StorageKey())
	if err != nil {
		return models.User{}, false, fmt.Errorf("load session snapshot: %w", err)
	}
	if !ok {
		return models.User{}, false, nil
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
		s.logger.WarnContext(ctx, "discarding unreadable session snapshot",
			slog.String("key", s.StorageKey()),
			slog.Any("error", err),
		)
		return models.User{}, false, nil
	}
	return u, true, nil
}

// Clear removes the snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.StorageKey()); err != nil {
		observability.SessionWrites.WithLabelValues("clear", "error").Inc()
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	observability.SessionWrites.WithLabelValues("clear", "ok").Inc()
	return nil
}

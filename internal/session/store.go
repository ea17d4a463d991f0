// Package session owns the durable per-device session id and the current user id.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/RoofStorm/tiger-engagement/pkg/kvstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageKey is the key the session id is persisted under.
const StorageKey = "tiger_session_id"

type Identity struct {
	SessionID string
	UserID    *string
}

type Store struct {
	mu        sync.Mutex
	storage   kvstore.Store
	sessionID string
	userID    *string
	logger    *zap.Logger
}

func NewStore(storage kvstore.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storage == nil {
		storage = kvstore.NewMemory()
	}
	return &Store{
		storage: storage,
		logger:  logger,
	}
}

// SessionID returns the persisted session id, creating and saving one on first
// use. When storage is unavailable a fresh id is kept in memory for the life
// of the process.
func (s *Store) SessionID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" {
		return s.sessionID
	}

	stored, err := s.storage.Get(ctx, StorageKey)
	switch {
	case err == nil && stored != "":
		s.sessionID = stored
		return s.sessionID
	case err != nil && !errors.Is(err, kvstore.ErrNotFound):
		s.logger.Warn("failed to read session id, using in-memory id", zap.Error(err))
	}

	s.sessionID = uuid.NewString()
	if err := s.storage.Set(ctx, StorageKey, s.sessionID); err != nil {
		s.logger.Warn("failed to persist session id", zap.Error(err))
	}
	s.logger.Debug("session created", zap.String("session_id", s.sessionID))
	return s.sessionID
}

func (s *Store) UserID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == nil {
		return nil
	}
	id := *s.userID
	return &id
}

// SetUserID records the authenticated user; nil clears it.
func (s *Store) SetUserID(userID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == nil || *userID == "" {
		s.userID = nil
		return
	}
	id := *userID
	s.userID = &id
}

func (s *Store) Identity(ctx context.Context) Identity {
	return Identity{
		SessionID: s.SessionID(ctx),
		UserID:    s.UserID(),
	}
}

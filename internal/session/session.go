// Package session hands out the opaque session identifier sent with every
// webhook request. Identifiers are kept per browser profile in a Store and
// survive restarts when the store is persistent.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/pkg/logger"
)

// DefaultProfile is used when the context carries no profile
const DefaultProfile = "default"

// Store persists one session identifier per profile
type Store interface {
	Load(profile string) (string, bool, error)
	Save(profile, id string) error
}

type profileKey struct{}

// WithProfile attaches a browser profile key to the context
func WithProfile(ctx context.Context, profile string) context.Context {
	return context.WithValue(ctx, profileKey{}, profile)
}

// ProfileFromContext returns the profile key, or DefaultProfile
func ProfileFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(profileKey{}).(string); ok && p != "" {
		return p
	}
	return DefaultProfile
}

// Manager resolves session identifiers
type Manager struct {
	store Store
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewManager creates a manager backed by store. A nil store means
// persistent storage is unavailable.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		log:   logger.Named("session"),
	}
}

// SessionID returns the identifier for the context's profile, creating
// and saving one on first use. When the store cannot be used it falls
// back to a non-persistent "tmp-<unix millis>" identifier.
func (m *Manager) SessionID(ctx context.Context) string {
	profile := ProfileFromContext(ctx)
	if m.store == nil {
		return m.fallback()
	}

	id, ok, err := m.store.Load(profile)
	if err != nil {
		m.log.Warn("session store unavailable", zap.String("profile", profile), zap.Error(err))
		return m.fallback()
	}
	if ok && id != "" {
		return id
	}

	id = m.newID()
	if err := m.store.Save(profile, id); err != nil {
		m.log.Warn("failed to persist session id", zap.String("profile", profile), zap.Error(err))
		return m.fallback()
	}
	m.log.Debug("session id created", zap.String("profile", profile), zap.String("session_id", id))
	return id
}

func (m *Manager) fallback() string {
	return fmt.Sprintf("tmp-%d", m.now().UnixMilli())
}

// MemoryStore keeps identifiers for the lifetime of the process
type MemoryStore struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]string)}
}

func (s *MemoryStore) Load(profile string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[profile]
	return id, ok, nil
}

func (s *MemoryStore) Save(profile, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[profile] = id
	return nil
}

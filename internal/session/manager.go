package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/metrics"
)

// Manager handles session persistence with an optional Redis backend and a
// local cache. With a nil Redis client sessions live in process memory only.
type Manager struct {
	client     *redis.Client
	logger     *zap.Logger
	ttl        time.Duration
	maxHistory int

	mu         sync.RWMutex
	localCache map[string]*Session
}

// NewManager creates a session manager. maxHistory bounds the stored turns
// per session; older turns are dropped on append.
func NewManager(client *redis.Client, ttl time.Duration, maxHistory int, logger *zap.Logger) (*Manager, error) {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	if maxHistory <= 0 {
		maxHistory = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	return &Manager{
		client:     client,
		logger:     logger,
		ttl:        ttl,
		maxHistory: maxHistory,
		localCache: make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the existing session or creates a fresh one under the
// given ID.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	s, err := m.Get(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if err != ErrSessionNotFound && err != ErrSessionExpired {
		return nil, err
	}

	now := time.Now()
	s = &Session{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		History:   make([]Message, 0),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = s
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created new session", zap.String("session_id", sessionID))
	metrics.SessionsCreated.Inc()
	return s, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if s.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		return s, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	if m.client == nil {
		return nil, ErrSessionNotFound
	}

	data, err := m.client.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &s
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
	return &s, nil
}

// AppendTurns appends messages to the session history, dropping the oldest
// turns once the history bound is exceeded, and persists the session.
func (m *Manager) AppendTurns(ctx context.Context, sessionID string, msgs ...Message) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	s.History = append(s.History, msgs...)
	if len(s.History) > m.maxHistory {
		s.History = s.History[len(s.History)-m.maxHistory:]
	}
	s.UpdatedAt = time.Now()
	s.ExpiresAt = time.Now().Add(m.ttl)
	return m.save(ctx, s)
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.localCache, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	return m.client.Del(ctx, m.key(sessionID)).Err()
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	m.localCache[s.ID] = s
	m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return m.client.Set(ctx, m.key(s.ID), data, m.ttl).Err()
}

func (m *Manager) key(sessionID string) string {
	return "session:" + sessionID
}

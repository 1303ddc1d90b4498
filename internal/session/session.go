package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maerai/maer/internal/conversation"
	"github.com/maerai/maer/internal/observability"
	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/schema"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrForbidden    = errors.New("session belongs to another principal")
	ErrLimitReached = errors.New("session limit reached")
	ErrClosed       = errors.New("session closed")
)

// Opener produces a fresh backing-engine connection with the dataset loaded.
type Opener interface {
	Open(ctx context.Context) (query.Engine, error)
}

// Session is the per-user context every pipeline call runs against: its own
// memory, its own engine connection and its own display toggle. Turns on one
// session are serialized.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	Memory    *conversation.Memory

	showReasoning atomic.Bool

	mu     sync.Mutex
	engine query.Engine
	closed bool
}

func (s *Session) ShowReasoning() bool {
	return s.showReasoning.Load()
}

func (s *Session) SetShowReasoning(enabled bool) {
	s.showReasoning.Store(enabled)
}

// Run executes fn with exclusive use of the session's engine.
func (s *Session) Run(fn func(engine query.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.engine)
}

type Options struct {
	MaxSessions int
	MemoryLimit int
}

type Manager struct {
	opener  Opener
	catalog *schema.Catalog
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	pending  int
}

func NewManager(opener Opener, catalog *schema.Catalog, opts Options, logger *slog.Logger) (*Manager, error) {
	if opener == nil {
		return nil, fmt.Errorf("engine opener is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("schema catalog is required")
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Manager{
		opener:   opener,
		catalog:  catalog,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: map[string]*Session{},
	}, nil
}

// Create opens a dedicated engine for a new session owned by owner.
func (m *Manager) Create(ctx context.Context, owner string) (*Session, error) {
	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions)+m.pending >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrLimitReached
	}
	m.pending++
	m.mu.Unlock()

	engine, err := m.opener.Open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending--
	if err != nil {
		return nil, fmt.Errorf("open session engine: %w", err)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: m.now(),
		Memory:    conversation.NewMemory(m.opts.MemoryLimit),
		engine:    engine,
	}
	m.sessions[sess.ID] = sess
	observability.SetActiveSessions(len(m.sessions))
	m.logger.Info("session created", slog.String("session_id", sess.ID), slog.String("owner", owner), slog.String("engine_id", engine.ID()))
	return sess, nil
}

func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Owner != owner {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Reload swaps in a freshly loaded engine. The old connection's schema entry
// is dropped and the connection closed; memory is kept.
func (m *Manager) Reload(ctx context.Context, sess *Session) error {
	engine, err := m.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("reload session engine: %w", err)
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		_ = engine.Close()
		return ErrClosed
	}
	previous := sess.engine
	sess.engine = engine
	sess.mu.Unlock()

	m.catalog.Invalidate(previous.ID())
	if err := previous.Close(); err != nil {
		m.logger.Warn("close previous engine failed", slog.String("session_id", sess.ID), slog.Any("error", err))
	}
	m.logger.Info("session reloaded", slog.String("session_id", sess.ID), slog.String("engine_id", engine.ID()))
	return nil
}

func (m *Manager) Close(id, owner string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if sess.Owner != owner {
		m.mu.Unlock()
		return ErrForbidden
	}
	delete(m.sessions, id)
	observability.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	return m.shutdown(sess)
}

// CloseAll closes every session; used on server shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = map[string]*Session{}
	observability.SetActiveSessions(0)
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	errs := make([]error, 0, len(sessions))
	for _, sess := range sessions {
		errs = append(errs, m.shutdown(sess))
	}
	return errors.Join(errs...)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) shutdown(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil
	}
	sess.closed = true
	m.catalog.Invalidate(sess.engine.ID())
	if err := sess.engine.Close(); err != nil {
		return fmt.Errorf("close session %s: %w", sess.ID, err)
	}
	m.logger.Info("session closed", slog.String("session_id", sess.ID))
	return nil
}

package slackapi

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"slackmcp/internal/domain"
)

// Session holds the process-wide authenticated identity. It is set by Init
// and read concurrently afterwards. An AuthExpired failure is remembered and
// reported on every use; any other failure is retried on the next use.
type Session struct {
	api    *API
	logger *zap.Logger

	once     sync.Once
	mu       sync.RWMutex
	ready    bool
	identity domain.Identity
	err      error
}

func NewSession(api *API, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{api: api, logger: logger}
}

// Init resolves the session identity with auth.test. Only the first call
// does any work.
func (s *Session) Init(ctx context.Context) error {
	s.once.Do(func() {
		id, err := s.api.AuthTest(ctx)
		s.mu.Lock()
		s.identity, s.err, s.ready = id, err, true
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("session identity unavailable",
				zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
			return
		}
		s.logger.Info("session established",
			zap.String("user", id.User),
			zap.String("user_id", id.UserID),
			zap.String("team", id.Team))
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Identity returns who the current call acts as. Calls carrying their own
// credentials are resolved per call and never cached.
func (s *Session) Identity(ctx context.Context) (domain.Identity, error) {
	if _, ok := CredentialsFrom(ctx); ok {
		return s.api.AuthTest(ctx)
	}
	s.mu.RLock()
	ready, id, err := s.ready, s.identity, s.err
	s.mu.RUnlock()
	if !ready {
		return domain.Identity{}, domain.Errorf(domain.KindUpstreamError, "session not initialized")
	}
	if err != nil && !domain.IsKind(err, domain.KindAuthExpired) {
		return s.Refresh(ctx)
	}
	return id, err
}

// Refresh asks Slack who the credentials belong to right now. A success
// replaces the cached process identity; a failure leaves it untouched.
func (s *Session) Refresh(ctx context.Context) (domain.Identity, error) {
	id, err := s.api.AuthTest(ctx)
	if _, ok := CredentialsFrom(ctx); ok || err != nil {
		return id, err
	}
	s.mu.Lock()
	s.identity, s.err, s.ready = id, nil, true
	s.mu.Unlock()
	return id, nil
}

// SetIdentity installs a known identity without calling Slack.
func (s *Session) SetIdentity(id domain.Identity) {
	s.once.Do(func() {})
	s.mu.Lock()
	s.identity, s.err, s.ready = id, nil, true
	s.mu.Unlock()
}

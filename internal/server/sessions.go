package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alkime/ebooks/internal/metrics"
	"github.com/alkime/ebooks/internal/workflow"
)

// sessionCookie identifies the browser session owning a workflow.
const sessionCookie = "ebook_session"

// session is one browser's workflow. tag is a public identifier distinct from
// the cookie value, so pages can tell a replaced session from their own.
type session struct {
	*workflow.Machine

	tag string
	// seen is the time of the last request, guarded by the store's mu.
	seen time.Time
}

// idleSince is the later of the last request and the last transition.
func (sess *session) idleSince() time.Time {
	if last := sess.LastActive(); last.After(sess.seen) {
		return last
	}
	return sess.seen
}

// sessionStore keeps one workflow machine per browser session, in memory only.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session

	newMachine func() *workflow.Machine
	ttl        time.Duration
	now        func() time.Time
	secure     bool
	logger     *slog.Logger
}

func newSessionStore(ttl time.Duration, secure bool, logger *slog.Logger, newMachine func() *workflow.Machine) *sessionStore {
	return &sessionStore{
		sessions:   make(map[string]*session),
		newMachine: newMachine,
		ttl:        ttl,
		now:        time.Now,
		secure:     secure,
		logger:     logger,
	}
}

// session returns the caller's workflow, creating a session when the request
// carries no known session id. The cookie is written on every request so its
// lifetime slides with activity, as the server-side expiry does.
func (s *sessionStore) session(c *gin.Context) *session {
	id, err := c.Cookie(sessionCookie)
	sess := s.lookup(id)
	if err != nil || sess == nil {
		id = uuid.NewString()
		sess = &session{Machine: s.newMachine(), tag: uuid.NewString(), seen: s.now()}

		s.mu.Lock()
		s.sessions[id] = sess
		count := len(s.sessions)
		s.mu.Unlock()

		metrics.ActiveSessions.Set(float64(count))
		s.logger.Debug("Created session", "session", sess.tag, "sessions", count)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, int(s.ttl.Seconds()), "/", "", s.secure, true)

	return sess
}

// lookup finds a session and marks it as seen.
func (s *sessionStore) lookup(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[id]
	if sess != nil {
		sess.seen = s.now()
	}

	return sess
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// sweep drops sessions with neither a request nor a transition within the
// TTL. Sessions with a provider call in flight are kept until it settles.
func (s *sessionStore) sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) && !sess.Busy() {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	metrics.ActiveSessions.Set(float64(count))

	return len(expired)
}

// janitor sweeps expired sessions until ctx is done.
func (s *sessionStore) janitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.logger.Info("Expired idle sessions", "expired", n, "remaining", s.len())
			}
		}
	}
}

// closeAll ends every subscription so open event streams return.
func (s *sessionStore) closeAll() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.Close()
	}
}

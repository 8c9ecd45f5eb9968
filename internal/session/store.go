// Package session keeps signed-in admins between requests: an in-memory
// store of sessions keyed by a random id, and a signed cookie carrying that
// id.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

// ErrNoSession is returned when the request carries no valid session
var ErrNoSession = errors.New("no session")

const (
	defaultCookieName = "muscledenz_session"
	defaultTTL        = 24 * time.Hour
)

// Options configure the store and its cookie
type Options struct {
	CookieName string
	HashKey    []byte // 32 bytes; generated when empty
	BlockKey   []byte // optional, enables cookie encryption
	TTL        time.Duration
	Secure     bool
}

// Store is an in-memory session store
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session

	codec      *securecookie.SecureCookie
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
	logger     *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewStore creates a session store. Without a configured hash key a random
// one is generated, so cookies do not survive a restart.
func NewStore(opts Options, logger *zap.Logger) *Store {
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if len(opts.HashKey) == 0 {
		opts.HashKey = securecookie.GenerateRandomKey(32)
		logger.Warn("session hash key not configured, using a random key")
	}
	if len(opts.BlockKey) == 0 {
		opts.BlockKey = nil
	}

	codec := securecookie.New(opts.HashKey, opts.BlockKey)
	codec.MaxAge(int(opts.TTL.Seconds()))

	return &Store{
		sessions:   make(map[string]domain.Session),
		codec:      codec,
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
		now:        time.Now,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Create stores s under a new id and returns it with ID and IssuedAt set
func (st *Store) Create(s domain.Session) domain.Session {
	s.ID = uuid.NewString()
	if s.IssuedAt.IsZero() {
		s.IssuedAt = st.now()
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns a live session
func (st *Store) Get(id string) (domain.Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return domain.Session{}, false
	}
	if st.expired(s) {
		st.Delete(id)
		return domain.Session{}, false
	}
	return s, true
}

// Delete removes a session
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of stored sessions, expired ones included
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) expired(s domain.Session) bool {
	return st.now().Sub(s.IssuedAt) > st.ttl
}

// CleanExpired removes expired sessions and returns how many were removed
func (st *Store) CleanExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if st.expired(s) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker removes expired sessions every interval until Stop
func (st *Store) StartCleanupWorker(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := st.CleanExpired(); n > 0 {
					st.logger.Debug("expired sessions removed", zap.Int("count", n))
				}
			case <-st.stop:
				return
			}
		}
	}()
}

// Stop stops the cleanup worker
func (st *Store) Stop() {
	st.stopOnce.Do(func() {
		close(st.stop)
		st.wg.Wait()
	})
}

// WriteCookie sets the signed session cookie
func (st *Store) WriteCookie(w http.ResponseWriter, s domain.Session) error {
	value, err := st.codec.Encode(st.cookieName, s.ID)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     st.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(st.ttl.Seconds()),
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie
func (st *Store) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     st.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest resolves the session named by the request cookie
func (st *Store) FromRequest(r *http.Request) (domain.Session, error) {
	cookie, err := r.Cookie(st.cookieName)
	if err != nil || cookie.Value == "" {
		return domain.Session{}, ErrNoSession
	}
	var id string
	if err := st.codec.Decode(st.cookieName, cookie.Value, &id); err != nil {
		st.logger.Debug("session cookie rejected", zap.Error(err))
		return domain.Session{}, ErrNoSession
	}
	s, ok := st.Get(id)
	if !ok {
		return domain.Session{}, ErrNoSession
	}
	return s, nil
}

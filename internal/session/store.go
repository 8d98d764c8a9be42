package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/cookie"
	"github.com/dgellow/restaurant-reviews/internal/crypto"
	"github.com/dgellow/restaurant-reviews/internal/log"
)

// DefaultMaxAge matches the two week lifetime of the session cookie.
const DefaultMaxAge = 14 * 24 * time.Hour

const sealPurpose = "restaurant-reviews session cookie v1"

// ErrTooLarge is returned when a session no longer fits in one cookie.
var ErrTooLarge = cookie.ErrTooLarge

// Options are the cookie attributes that depend on the deployment.
type Options struct {
	// MaxAge defaults to DefaultMaxAge.
	MaxAge time.Duration
	// Secure restricts the cookie to HTTPS. Only plain-HTTP development
	// hosts turn it off.
	Secure bool
}

// Store loads and saves sessions in a sealed cookie. There is no server-side
// session table: the cookie is the only copy of the bag.
type Store struct {
	sealer *crypto.Sealer
	maxAge time.Duration
	secure bool
}

// NewStore creates a cookie session store keyed by secret.
func NewStore(secret []byte, opts Options) (*Store, error) {
	sealer, err := crypto.NewSealer(secret, sealPurpose)
	if err != nil {
		return nil, fmt.Errorf("creating session sealer: %w", err)
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{sealer: sealer, maxAge: maxAge, secure: opts.Secure}, nil
}

// Load returns the session carried by the request. A missing cookie yields an
// empty session. A cookie that fails to open yields an empty session marked
// modified, so the stale cookie is cleared on the response.
func (st *Store) Load(r *http.Request) *Session {
	value, err := cookie.GetSession(r)
	if err != nil {
		return New()
	}

	values, err := st.decode(value)
	if err != nil {
		log.LogDebugWithFields("session", "Discarding unreadable session cookie", map[string]any{
			"error": err.Error(),
		})
		s := New()
		s.modified = true
		return s
	}
	return fromValues(values)
}

// Save writes the session cookie. An empty session clears the cookie. A
// session too large for a cookie is not written and ErrTooLarge is returned;
// the browser keeps its previous cookie.
func (st *Store) Save(w http.ResponseWriter, s *Session) error {
	if s.Len() == 0 {
		cookie.ClearSession(w)
		s.modified = false
		return nil
	}

	value, err := st.encode(s.values)
	if err != nil {
		return err
	}
	if err := cookie.SetSession(w, value, st.maxAge, st.secure); err != nil {
		return err
	}
	s.modified = false
	return nil
}

// Check reports whether s would fit in the session cookie, so handlers can
// fail a request instead of having the browser silently drop the cookie.
func (st *Store) Check(s *Session) error {
	if s.Len() == 0 {
		return nil
	}
	value, err := st.encode(s.values)
	if err != nil {
		return err
	}
	return cookie.CheckSize(value)
}

func (st *Store) encode(values map[string]json.RawMessage) (string, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	return st.sealer.Seal(data)
}

func (st *Store) decode(value string) (map[string]json.RawMessage, error) {
	data, err := st.sealer.Open(value)
	if err != nil {
		return nil, err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return values, nil
}

type contextKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// Middleware loads the session for every request and writes it back just
// before the response header is sent, if the handler modified it.
func (st *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := st.Load(r)
		sw := &sessionWriter{ResponseWriter: w, store: st, session: s}
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), s)))
		sw.commit()
	})
}

// sessionWriter flushes the session cookie before the first header write.
type sessionWriter struct {
	http.ResponseWriter
	store     *Store
	session   *Session
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if !w.session.Modified() {
		return
	}
	if err := w.store.Save(w.ResponseWriter, w.session); err != nil {
		log.LogErrorWithFields("session", "Failed to save session", map[string]any{
			"error": err.Error(),
		})
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

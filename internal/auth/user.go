package auth

import (
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/session"
)

// Session keys owned by the login flow.
const (
	KeyOAuthState = "oauth_state"
	KeyNextURL    = "next_url"
	KeyUser       = "user"
)

// User is the authenticated user record kept in the session. It is rebuilt
// from the session on every request and never persisted elsewhere.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

// State is the position of a browser session in the login flow.
type State int

const (
	StateAnonymous State = iota
	StateLoginPending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateLoginPending:
		return "login_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// StateOf derives the flow state from the session keys. A stored user wins
// over a pending login, since a signed-in user may start another login.
func StateOf(s *session.Session) State {
	if _, ok := userFromSession(s); ok {
		return StateAuthenticated
	}
	if s.Has(KeyOAuthState) {
		return StateLoginPending
	}
	return StateAnonymous
}

func userFromSession(s *session.Session) (*User, bool) {
	if s == nil {
		return nil, false
	}
	var user User
	ok, err := s.Get(KeyUser, &user)
	if err != nil {
		log.LogWarnWithFields("auth", "Ignoring malformed user record in session", map[string]any{
			"error": err.Error(),
		})
		return nil, false
	}
	if !ok || user.ID == "" {
		return nil, false
	}
	return &user, true
}

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dgellow/restaurant-reviews/internal/crypto"
	"github.com/dgellow/restaurant-reviews/internal/idp"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/session"
)

// DefaultNextURL is where a completed login lands when no page was requested.
const DefaultNextURL = "/"

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Flow drives a browser session through anonymous, login-pending and
// authenticated states. A Flow without a provider runs in degraded mode:
// nobody is ever authenticated and login attempts fail with
// ErrConfigurationMissing.
type Flow struct {
	provider      idp.Provider
	generateState func() (string, error)
}

// Option configures a Flow.
type Option func(*Flow)

// WithStateGenerator replaces the random state nonce source.
func WithStateGenerator(fn func() (string, error)) Option {
	return func(f *Flow) {
		f.generateState = fn
	}
}

// NewFlow creates a login flow. Pass a nil provider for degraded mode.
func NewFlow(provider idp.Provider, opts ...Option) *Flow {
	f := &Flow{
		provider:      provider,
		generateState: crypto.GenerateSecureToken,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enabled reports whether an identity provider is configured.
func (f *Flow) Enabled() bool {
	return f != nil && f.provider != nil
}

// CurrentUser returns the signed-in user, or false for anonymous sessions and
// in degraded mode. Absence is never an error; callers decide what it means.
func (f *Flow) CurrentUser(s *session.Session) (*User, bool) {
	if !f.Enabled() {
		return nil, false
	}
	return userFromSession(s)
}

// IsAuthenticated reports whether the session holds a user.
func (f *Flow) IsAuthenticated(s *session.Session) bool {
	_, ok := f.CurrentUser(s)
	return ok
}

// RememberNext records the page to return to once login completes.
// Unsafe targets are ignored.
func (f *Flow) RememberNext(s *session.Session, nextURL string) error {
	next := SafeNextURL(nextURL)
	if next == "" {
		return nil
	}
	return s.Set(KeyNextURL, next)
}

// BeginLogin moves the session to login-pending: it stores a fresh state
// nonce and, when given, the page to return to, then returns the provider
// authorization URL to redirect the browser to. An existing next_url is kept
// when nextURL is empty or unsafe.
func (f *Flow) BeginLogin(s *session.Session, nextURL string) (string, error) {
	if !f.Enabled() {
		return "", newError(KindConfigurationMissing, "identity provider is not configured", nil)
	}

	state, err := f.generateState()
	if err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	if err := s.Set(KeyOAuthState, state); err != nil {
		return "", err
	}
	if err := f.RememberNext(s, nextURL); err != nil {
		return "", err
	}

	log.LogDebugWithFields("auth", "Login initiated", map[string]any{
		"provider": f.provider.Type(),
	})
	return f.provider.AuthURL(state), nil
}

// Callback completes the login. Checks run in a fixed order: provider
// error, missing code, state, token exchange, profile. The session is only
// written after every check passes; on failure oauth_state and next_url stay
// in place so the user can retry.
func (f *Flow) Callback(ctx context.Context, s *session.Session, params CallbackParams) (string, error) {
	if !f.Enabled() {
		return "", newError(KindConfigurationMissing, "identity provider is not configured", nil)
	}

	if params.Error != "" {
		detail := params.Error
		if params.ErrorDescription != "" {
			detail = params.Error + ": " + params.ErrorDescription
		}
		return "", newError(KindProviderError, detail, nil)
	}

	if params.Code == "" {
		return "", newError(KindMissingCode, "authorization code missing", nil)
	}

	stored, ok := s.GetString(KeyOAuthState)
	if !ok || stored == "" {
		return "", newError(KindStateMismatch, "no login in progress", nil)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(params.State)) != 1 {
		return "", newError(KindStateMismatch, "state parameter does not match", nil)
	}

	token, err := f.provider.ExchangeCode(ctx, params.Code)
	if err != nil {
		var tokenErr *idp.TokenError
		if errors.As(err, &tokenErr) {
			return "", newError(KindTokenExchangeFailed, tokenErr.Error(), err)
		}
		return "", newError(KindProviderUnavailable, "token exchange", err)
	}
	if token == nil || token.AccessToken == "" {
		return "", newError(KindTokenExchangeFailed, "token response carried no access token", nil)
	}

	profile, err := f.provider.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return "", newError(KindProviderUnavailable, "profile fetch", err)
	}
	if profile == nil {
		return "", newError(KindProfileFetchFailed, "failed to get user information", nil)
	}

	user := User{
		ID:          profile.ID,
		Name:        profile.DisplayName,
		Email:       profile.Email(),
		AccessToken: token.AccessToken,
	}
	if err := s.Set(KeyUser, user); err != nil {
		return "", err
	}
	s.Delete(KeyOAuthState)

	next := DefaultNextURL
	var storedNext string
	if popped, _ := s.Pop(KeyNextURL, &storedNext); popped {
		if safe := SafeNextURL(storedNext); safe != "" {
			next = safe
		}
	}

	log.LogInfoWithFields("auth", "User authenticated", map[string]any{
		"provider": f.provider.Type(),
		"user_id":  user.ID,
		"next_url": next,
	})
	return next, nil
}

// Logout returns the session to anonymous and the URL to redirect to: the
// provider's end-session endpoint, or the site root in degraded mode.
func (f *Flow) Logout(s *session.Session, postLogoutRedirectURI string) string {
	s.Delete(KeyUser)
	if !f.Enabled() {
		return DefaultNextURL
	}
	s.Delete(KeyNextURL)
	return f.provider.LogoutURL(postLogoutRedirectURI)
}

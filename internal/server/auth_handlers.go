package server

import (
	"errors"
	"net/http"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/session"
)

// AuthHandlers serves the /auth/ routes that drive the login flow
type AuthHandlers struct {
	site     *SiteHandlers
	flow     *auth.Flow
	sessions *session.Store
	siteURL  string
}

// NewAuthHandlers creates the login flow handlers. siteURL is the absolute
// site root handed to the provider on sign-out.
func NewAuthHandlers(site *SiteHandlers, flow *auth.Flow, sessions *session.Store, siteURL string) *AuthHandlers {
	if siteURL == "" {
		siteURL = "/"
	}
	return &AuthHandlers{site: site, flow: flow, sessions: sessions, siteURL: siteURL}
}

// requestSession returns the session loaded by the session middleware.
func (h *AuthHandlers) requestSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		log.LogErrorWithFields("auth", "No session in request context", map[string]any{
			"path": r.URL.Path,
		})
		h.site.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}
	return s, ok
}

// Login starts the provider redirect. An optional next query parameter
// names the local page to return to afterwards.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requestSession(w, r)
	if !ok {
		return
	}

	authURL, err := h.flow.BeginLogin(s, r.URL.Query().Get("next"))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the login with the parameters the provider sent back.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requestSession(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	next, err := h.flow.Callback(r.Context(), s, auth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	// The browser drops an oversized cookie without telling anyone, which
	// would look like a login that silently did not stick.
	if err := h.sessions.Check(s); err != nil {
		fields := map[string]any{"error": err.Error()}
		if user, ok := h.flow.CurrentUser(s); ok {
			fields["user_id"] = user.ID
		}
		s.Delete(auth.KeyUser)
		log.LogErrorWithFields("auth", "Signed-in session does not fit in a cookie", fields)
		h.site.renderError(w, r, http.StatusInternalServerError, "Sign-in failed",
			"Your sign-in could not be stored in a session cookie. Please contact the site administrator.")
		return
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// Logout signs the user out and sends the browser to the provider's
// end-session page, which returns to the site root.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requestSession(w, r)
	if !ok {
		return
	}

	user, signedIn := h.flow.CurrentUser(s)
	target := h.flow.Logout(s, h.siteURL)
	if signedIn {
		log.LogInfoWithFields("auth", "User signed out", map[string]any{
			"user_id": user.ID,
		})
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Profile shows the signed-in user. Anonymous visitors are sent to sign in
// and brought back here; without a provider the page renders anonymously.
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requestSession(w, r)
	if !ok {
		return
	}

	if _, signedIn := h.flow.CurrentUser(s); !signedIn && h.flow.Enabled() {
		if err := h.flow.RememberNext(s, r.URL.RequestURI()); err != nil {
			h.site.internalError(w, r, "Failed to store next URL", err)
			return
		}
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}

	h.site.renderer.Render(w, http.StatusOK, pageProfile, h.site.basePage(r))
}

// writeAuthError renders a login failure with the status its kind maps to.
func (h *AuthHandlers) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		h.site.internalError(w, r, "Login failed", err)
		return
	}

	fields := map[string]any{
		"kind":        string(authErr.Kind),
		"detail":      authErr.Detail,
		"remote_addr": r.RemoteAddr,
	}
	if authErr.Err != nil {
		fields["error"] = authErr.Err.Error()
	}
	switch {
	case authErr.Kind.SecurityRelevant():
		log.LogWarnWithFields("auth", "Rejected login callback", fields)
	case authErr.Kind == auth.KindConfigurationMissing:
		log.LogErrorWithFields("auth", "Login attempted without an identity provider", fields)
	default:
		log.LogErrorWithFields("auth", "Login failed", fields)
	}

	data := h.site.basePage(r)
	data.Title = "Sign-in failed"
	data.Message = authErrorMessage(authErr)
	data.RetryLogin = h.flow.Enabled()
	h.site.renderer.Render(w, authErr.StatusCode(), pageError, data)
}

func authErrorMessage(e *auth.Error) string {
	switch e.Kind {
	case auth.KindConfigurationMissing:
		return "Azure authentication not configured"
	case auth.KindProviderError:
		return "Authentication failed: " + e.Detail
	case auth.KindMissingCode:
		return "Authorization code missing"
	case auth.KindStateMismatch:
		return "Invalid state parameter"
	case auth.KindTokenExchangeFailed:
		return "Token exchange failed: " + e.Detail
	case auth.KindProfileFetchFailed:
		return "Failed to get user information"
	case auth.KindProviderUnavailable:
		return "The sign-in service is unavailable. Please try again later."
	default:
		return "Sign-in failed"
	}
}

package idp

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrProviderUnavailable marks transport-level failures talking to the
// identity provider: connection errors, timeouts, and 5xx answers without an
// OAuth error body.
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// TokenError is an OAuth error reported by the token endpoint, such as
// invalid_grant for an expired or reused authorization code.
type TokenError struct {
	Code        string
	Description string
	URI         string
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Profile is the user document returned by the profile endpoint.
type Profile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Email returns the mail attribute, falling back to the user principal name
// for accounts without a mailbox.
func (p Profile) Email() string {
	if p.Mail != "" {
		return p.Mail
	}
	return p.UserPrincipalName
}

// Provider abstracts the OAuth2 authorization-code operations against a
// single identity provider. Implementations hold no per-user state.
type Provider interface {
	// Type returns the provider type identifier (e.g., "azure").
	Type() string

	// AuthURL builds the authorization URL embedding the anti-forgery state.
	// It performs no network call.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens. A provider
	// reported OAuth error is returned as *TokenError; transport failures
	// wrap ErrProviderUnavailable.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserProfile fetches the profile for an access token. It returns a nil
	// profile and nil error when the endpoint answers with a non-success
	// status; transport failures wrap ErrProviderUnavailable.
	UserProfile(ctx context.Context, accessToken string) (*Profile, error)

	// LogoutURL builds the provider's end-session URL.
	LogoutURL(postLogoutRedirectURI string) string
}

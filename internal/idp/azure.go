package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/urlutil"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	// DefaultAuthorityHost is the public Microsoft Entra ID cloud.
	DefaultAuthorityHost = "https://login.microsoftonline.com"
	// DefaultGraphMeURL is the Microsoft Graph profile endpoint for the signed-in user.
	DefaultGraphMeURL = "https://graph.microsoft.com/v1.0/me"
	// DefaultTimeout bounds every server-to-server call to the provider.
	DefaultTimeout = 10 * time.Second
)

// DefaultScopes requests sign-in plus read access to the user's own profile.
var DefaultScopes = []string{"openid", "profile", "email", "User.Read"}

// AzureConfig configures the Microsoft Entra ID provider.
type AzureConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Optional overrides, mostly for sovereign clouds and tests.
	AuthorityHost string
	GraphMeURL    string
	Scopes        []string
	Timeout       time.Duration
}

// AzureProvider implements Provider for Microsoft Entra ID (Azure AD) with
// Microsoft Graph as the profile endpoint.
type AzureProvider struct {
	config        oauth2.Config
	httpClient    *http.Client
	authorityHost string
	tenantID      string
	graphMeURL    string
}

var _ Provider = (*AzureProvider)(nil)

// NewAzureProvider creates an Azure AD provider.
func NewAzureProvider(cfg AzureConfig) (*AzureProvider, error) {
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("tenantId is required for Azure AD")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required for Azure AD")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("clientSecret is required for Azure AD")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirectUri is required for Azure AD")
	}

	authorityHost := strings.TrimRight(cfg.AuthorityHost, "/")
	if authorityHost == "" {
		authorityHost = DefaultAuthorityHost
	}
	if !urlutil.IsAbsoluteHTTP(authorityHost) {
		return nil, fmt.Errorf("invalid authority host: %q", authorityHost)
	}

	endpoint := microsoft.AzureADEndpoint(cfg.TenantID)
	if authorityHost != DefaultAuthorityHost {
		authURL, err := urlutil.JoinPath(authorityHost, cfg.TenantID, "oauth2/v2.0/authorize")
		if err != nil {
			return nil, fmt.Errorf("invalid authority host: %w", err)
		}
		tokenURL, err := urlutil.JoinPath(authorityHost, cfg.TenantID, "oauth2/v2.0/token")
		if err != nil {
			return nil, fmt.Errorf("invalid authority host: %w", err)
		}
		endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	graphMeURL := cfg.GraphMeURL
	if graphMeURL == "" {
		graphMeURL = DefaultGraphMeURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &AzureProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		authorityHost: authorityHost,
		tenantID:      cfg.TenantID,
		graphMeURL:    graphMeURL,
	}, nil
}

// Type returns the provider type.
func (p *AzureProvider) Type() string {
	return "azure"
}

// AuthURL generates the authorization URL.
func (p *AzureProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *AzureProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err == nil {
		return token, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return nil, &TokenError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
				URI:         retrieveErr.ErrorURI,
			}
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return nil, &TokenError{
				Code:        "invalid_request",
				Description: fmt.Sprintf("token endpoint returned status %d", retrieveErr.Response.StatusCode),
			}
		}
	}
	return nil, fmt.Errorf("%w: token exchange: %v", ErrProviderUnavailable, err)
}

// UserProfile fetches the signed-in user's profile from Microsoft Graph.
func (p *AzureProvider) UserProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphMeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: profile request: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.LogWarnWithFields("idp", "Profile endpoint returned non-success status", map[string]any{
			"status": resp.StatusCode,
			"body":   readLimited(resp.Body, 1024),
		})
		return nil, nil
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		log.LogWarnWithFields("idp", "Failed to decode profile", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	if profile.ID == "" {
		return nil, nil
	}
	return &profile, nil
}

// LogoutURL builds the Entra ID end-session URL.
func (p *AzureProvider) LogoutURL(postLogoutRedirectURI string) string {
	logoutURL, err := urlutil.JoinPath(p.authorityHost, p.tenantID, "oauth2/v2.0/logout")
	if err != nil || postLogoutRedirectURI == "" {
		return logoutURL
	}
	withRedirect, err := urlutil.WithQuery(logoutURL, url.Values{"post_logout_redirect_uri": {postLogoutRedirectURI}})
	if err != nil {
		return logoutURL
	}
	return withRedirect
}

// readLimited reads at most limit bytes of an error response for logging.
func readLimited(r io.Reader, limit int64) string {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}

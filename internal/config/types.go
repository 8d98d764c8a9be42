package config

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/envutil"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// AuthMode says whether sign-in is available
type AuthMode string

const (
	// AuthModeDisabled runs the site without an identity provider. Pages that
	// need a user render as anonymous.
	AuthModeDisabled AuthMode = "disabled"
	// AuthModeAzure signs users in with Microsoft Entra ID.
	AuthModeAzure AuthMode = "azure"
)

// StorageKind selects the data store backend
type StorageKind string

const (
	StorageSQLite    StorageKind = "sqlite"
	StoragePostgres  StorageKind = "postgres"
	StorageFirestore StorageKind = "firestore"
	StorageMemory    StorageKind = "memory"
)

// Config is the complete application configuration, read from the
// environment.
type Config struct {
	Addr       string `env:"ADDR" envDefault:":8000" validate:"required"`
	Production bool   `env:"RUNNING_IN_PRODUCTION"`
	Env        string `env:"RESTAURANTS_ENV"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=error warn warning info debug trace ERROR WARN WARNING INFO DEBUG TRACE"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`

	Session   SessionConfig
	Azure     AzureConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig

	// AuthMode is derived from the Azure settings by Load.
	AuthMode AuthMode
}

// SessionConfig configures the browser session cookie
type SessionConfig struct {
	SecretKey Secret        `env:"SESSION_SECRET_KEY"`
	MaxAge    time.Duration `env:"SESSION_MAX_AGE" envDefault:"336h" validate:"gt=0"`

	// Generated is set when no key was configured and a random one was made.
	Generated bool
}

// AzureConfig holds the Microsoft Entra ID app registration
type AzureConfig struct {
	ClientID      Secret        `env:"AZURE_CLIENT_ID"`
	ClientSecret  Secret        `env:"AZURE_CLIENT_SECRET"`
	TenantID      string        `env:"AZURE_TENANT_ID"`
	RedirectURI   string        `env:"AZURE_REDIRECT_URI" envDefault:"http://localhost:8000/auth/callback" validate:"required,url"`
	AuthorityHost string        `env:"AZURE_AUTHORITY_HOST" validate:"omitempty,url"`
	GraphMeURL    string        `env:"AZURE_GRAPH_ME_URL" validate:"omitempty,url"`
	Scopes        []string      `env:"AZURE_SCOPES" envSeparator:" "`
	Timeout       time.Duration `env:"IDP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry tracing. Tracing is off unless an
// OTLP endpoint is set.
type TelemetryConfig struct {
	Enabled      bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"omitempty,url"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"restaurant-reviews" validate:"required"`
	// AppInsightsConnectionString is only reported: Application Insights
	// ingests OTLP through a collector at OTLPEndpoint.
	AppInsightsConnectionString Secret `env:"APPLICATIONINSIGHTS_CONNECTION_STRING"`
}

// StorageConfig selects and configures the data store
type StorageConfig struct {
	Kind                StorageKind   `env:"STORAGE" envDefault:"sqlite" validate:"oneof=sqlite postgres firestore memory"`
	SQLitePath          string        `env:"SQLITE_PATH" envDefault:"restaurants.db" validate:"required_if=Kind sqlite"`
	DatabaseURL         Secret        `env:"DATABASE_URL" validate:"required_if=Kind postgres"`
	DatabaseMaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"10" validate:"gte=0"`
	FirestoreProjectID  string        `env:"FIRESTORE_PROJECT_ID" validate:"required_if=Kind firestore"`
	FirestoreDatabase   string        `env:"FIRESTORE_DATABASE" envDefault:"(default)"`
	FirestorePrefix     string        `env:"FIRESTORE_COLLECTION_PREFIX"`
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"30s" validate:"gt=0"`
}

// SecureCookies reports whether the session cookie is restricted to HTTPS.
// Development hosts serve plain HTTP.
func (c Config) SecureCookies() bool {
	return !envutil.IsDevelopment(c.Env)
}

// SiteURL is the public root of the site: the origin of the redirect URI
// registered with Entra ID. Request headers are never used to build it.
func (c Config) SiteURL() string {
	u, err := url.Parse(c.Azure.RedirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "/"
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Addr:     "127.0.0.1:0",
		AuthMode: config.AuthModeDisabled,
		Session: config.SessionConfig{
			SecretKey: "0123456789abcdef0123456789abcdef",
			MaxAge:    time.Hour,
		},
		Storage: config.StorageConfig{
			Kind:                config.StorageMemory,
			HealthCheckInterval: time.Minute,
		},
	}
}

func TestNewApp_DegradedMode(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Azure authentication not configured")
}

func azureTestConfig(env string) config.Config {
	cfg := testConfig()
	cfg.Env = env
	cfg.AuthMode = config.AuthModeAzure
	cfg.Azure = config.AzureConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TenantID:     "tenant",
		RedirectURI:  "https://reviews.example.org/auth/callback",
		Timeout:      time.Second,
	}
	return cfg
}

func TestNewApp_SessionCookieSecureFromConfig(t *testing.T) {
	for env, secure := range map[string]bool{"production": true, "development": false} {
		t.Run(env, func(t *testing.T) {
			app, err := NewApp(context.Background(), azureTestConfig(env))
			require.NoError(t, err)
			t.Cleanup(func() { app.Close() })

			rec := httptest.NewRecorder()
			app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
			require.Equal(t, http.StatusFound, rec.Code)

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, secure, cookies[0].Secure)
		})
	}
}

func TestNewApp_LogoutReturnsToConfiguredSite(t *testing.T) {
	app, err := NewApp(context.Background(), azureTestConfig("production"))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.Header.Set("X-Forwarded-Host", "evil.example")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://reviews.example.org/", loc.Query().Get("post_logout_redirect_uri"))
}

func TestNewApp_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Kind = config.StorageSQLite
	cfg.Storage.SQLitePath = t.TempDir() + "/restaurants.db"

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_UnsupportedStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Kind = "cassandra"

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage kind")
}

func TestNewApp_FirestoreRequiresProject(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Kind = config.StorageFirestore

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projectID is required")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

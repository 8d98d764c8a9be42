package integration

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginFlow(t *testing.T) {
	startApp(t, azureEnv()...)
	browser := newBrowser(t)

	t.Run("anonymous index offers sign in", func(t *testing.T) {
		resp := mustGet(t, browser, "/")
		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `href="/auth/login"`)
	})

	t.Run("profile redirects through the provider and back", func(t *testing.T) {
		resp := mustGet(t, browser, "/auth/profile")
		body := readBody(t, resp)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "/auth/profile", resp.Request.URL.Path, "login should return to the requested page")
		assert.Contains(t, body, "Ada Lovelace")
		assert.Contains(t, body, "ada@example.com")
	})

	t.Run("signed-in user writes a review", func(t *testing.T) {
		resp, err := browser.PostForm(appURL+"/add", url.Values{
			"restaurant_name": {"Cafe Integration"},
			"street_address":  {"1 Test Street"},
			"description":     {"End to end"},
		})
		require.NoError(t, err)
		readBody(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		detailsPath := resp.Request.URL.Path
		require.True(t, strings.HasPrefix(detailsPath, "/details/"), "got %s", detailsPath)

		id := strings.TrimPrefix(detailsPath, "/details/")
		resp, err = browser.PostForm(appURL+"/review/"+id, url.Values{
			"user_name":   {"Ada Lovelace"},
			"rating":      {"5"},
			"review_text": {"Analytical excellence"},
		})
		require.NoError(t, err)
		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, detailsPath, resp.Request.URL.Path)
		assert.Contains(t, body, "Analytical excellence")
		assert.Contains(t, body, "Cafe Integration")
	})

	t.Run("logout goes through the provider end-session endpoint", func(t *testing.T) {
		resp, err := noRedirect(browser).Get(appURL + "/auth/logout")
		require.NoError(t, err)
		readBody(t, resp)
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/test-tenant/oauth2/v2.0/logout", location.Path)
		assert.Equal(t, appURL+"/", location.Query().Get("post_logout_redirect_uri"))

		resp, err = noRedirect(browser).Get(appURL + "/auth/profile")
		require.NoError(t, err)
		readBody(t, resp)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/auth/login", resp.Header.Get("Location"))
	})
}

func TestCallbackRejections(t *testing.T) {
	startApp(t, azureEnv()...)

	t.Run("callback without a pending login", func(t *testing.T) {
		resp := mustGet(t, newBrowser(t), "/auth/callback?code=test-auth-code&state=forged")
		body := readBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Invalid state parameter")
	})

	t.Run("provider reported error", func(t *testing.T) {
		resp := mustGet(t, newBrowser(t), "/auth/callback?error=access_denied&error_description=denied")
		body := readBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "access_denied")
	})

	t.Run("tampered state after login started", func(t *testing.T) {
		browser := newBrowser(t)
		resp, err := noRedirect(browser).Get(appURL + "/auth/login")
		require.NoError(t, err)
		readBody(t, resp)
		require.Equal(t, http.StatusFound, resp.StatusCode)

		resp = mustGet(t, browser, "/auth/callback?code=test-auth-code&state=not-the-state")
		readBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("expired authorization code", func(t *testing.T) {
		browser := newBrowser(t)
		resp, err := noRedirect(browser).Get(appURL + "/auth/login")
		require.NoError(t, err)
		readBody(t, resp)

		authURL, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		state := authURL.Query().Get("state")
		require.NotEmpty(t, state)

		resp = mustGet(t, browser, "/auth/callback?code=stale&state="+url.QueryEscape(state))
		body := readBody(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Token exchange failed")
	})
}

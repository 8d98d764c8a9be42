package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/auth"
	"github.com/dgellow/restaurant-reviews/internal/cookie"
	"github.com/dgellow/restaurant-reviews/internal/session"
	"github.com/dgellow/restaurant-reviews/internal/storage"
	"github.com/stretchr/testify/require"
)

// testSite drives the full handler like a browser: cookies set by one
// response are sent with the next request.
type testSite struct {
	t       *testing.T
	handler http.Handler
	store   storage.Storage
	cookies map[string]*http.Cookie
}

func newTestSite(t *testing.T, store storage.Storage, flow *auth.Flow) *testSite {
	t.Helper()
	return newTestSiteWithDeps(t, Dependencies{Storage: store, Flow: flow})
}

// newTestSiteWithDeps fills in a session store when deps has none.
func newTestSiteWithDeps(t *testing.T, deps Dependencies) *testSite {
	t.Helper()
	if deps.SessionStore == nil {
		sessions, err := session.NewStore([]byte("server-test-session-secret-0123456789"), session.Options{MaxAge: time.Hour})
		require.NoError(t, err)
		deps.SessionStore = sessions
	}
	store := deps.Storage

	handler, err := NewHandler(deps)
	require.NoError(t, err)

	return &testSite{t: t, handler: handler, store: store, cookies: make(map[string]*http.Cookie)}
}

func (s *testSite) do(req *http.Request) *httptest.ResponseRecorder {
	s.t.Helper()
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(s.cookies, c.Name)
			continue
		}
		s.cookies[c.Name] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return rec
}

func (s *testSite) get(target string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (s *testSite) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *testSite) hasSessionCookie() bool {
	_, ok := s.cookies[cookie.SessionCookie]
	return ok
}

func seedRestaurant(t *testing.T, store storage.Storage, name string) *storage.Restaurant {
	t.Helper()
	r := &storage.Restaurant{Name: name, StreetAddress: "1 Main St", Description: "Tasty"}
	require.NoError(t, store.CreateRestaurant(context.Background(), r))
	return r
}

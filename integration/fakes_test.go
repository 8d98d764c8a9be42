package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	fakeAuthCode    = "test-auth-code"
	fakeAccessToken = "test-access-token"
)

// FakeEntraServer impersonates the Microsoft identity platform endpoints the
// application talks to: authorize, token, logout and Graph /me.
type FakeEntraServer struct {
	server *http.Server
	port   string
}

// NewFakeEntraServer creates a fake identity platform listening on port
func NewFakeEntraServer(port string) *FakeEntraServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{tenant}/oauth2/v2.0/authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		callback, err := url.Parse(q.Get("redirect_uri"))
		if err != nil || callback.Host == "" {
			http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
			return
		}
		callback.RawQuery = url.Values{
			"code":  {fakeAuthCode},
			"state": {q.Get("state")},
		}.Encode()
		http.Redirect(w, r, callback.String(), http.StatusFound)
	})

	mux.HandleFunc("POST /{tenant}/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != fakeAuthCode {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "AADSTS70008: The provided authorization code has expired",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fakeAccessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "openid profile email User.Read",
		})
	})

	mux.HandleFunc("GET /{tenant}/oauth2/v2.0/logout", func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("post_logout_redirect_uri")
		if next == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, next, http.StatusFound)
	})

	mux.HandleFunc("GET /v1.0/me", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != fakeAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                "00000000-0000-0000-0000-000000000001",
			"displayName":       "Ada Lovelace",
			"mail":              "ada@example.com",
			"userPrincipalName": "ada@example.onmicrosoft.com",
		})
	})

	return &FakeEntraServer{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port: port,
	}
}

// Start listens and serves in the background
func (f *FakeEntraServer) Start() error {
	ln, err := net.Listen("tcp", f.server.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()
	return nil
}

// Stop shuts the fake server down
func (f *FakeEntraServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}

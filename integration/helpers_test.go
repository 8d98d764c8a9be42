package integration

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSessionKey = "integration-session-key-32-bytes-long!"

// azureEnv points the application at the fake Entra ID server
func azureEnv() []string {
	return []string{
		"AZURE_CLIENT_ID=test-client-id",
		"AZURE_CLIENT_SECRET=test-client-secret",
		"AZURE_TENANT_ID=test-tenant",
		"AZURE_REDIRECT_URI=" + appURL + "/auth/callback",
		"AZURE_AUTHORITY_HOST=" + entraURL,
		"AZURE_GRAPH_ME_URL=" + entraURL + "/v1.0/me",
	}
}

// disabledAuthEnv blanks any Azure credentials inherited from the caller
func disabledAuthEnv() []string {
	return []string{
		"AZURE_CLIENT_ID=",
		"AZURE_CLIENT_SECRET=",
		"AZURE_TENANT_ID=",
	}
}

func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("RESTAURANTS_TRACE") != "" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startApp runs the binary against a fresh SQLite database. Later entries in
// extraEnv override earlier ones.
func startApp(t *testing.T, extraEnv ...string) {
	cmd := exec.Command(binaryPath)

	cmd.Env = append(os.Environ(),
		"ADDR=:"+appPort,
		"RESTAURANTS_ENV=development",
		"SESSION_SECRET_KEY="+testSessionKey,
		"STORAGE=sqlite",
		"SQLITE_PATH="+filepath.Join(t.TempDir(), "restaurants.db"),
		"HEALTH_CHECK_INTERVAL=1s",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cmd.Env = append(cmd.Env, "LOG_LEVEL="+logLevel)
	}

	if path := os.Getenv("RESTAURANTS_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start restaurant-reviews: %v", err)
	}
	t.Cleanup(func() {
		stopApp(cmd)
	})

	waitForApp(t)
}

// stopApp sends SIGINT and waits, killing the process if it hangs
func stopApp(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func waitForApp(t *testing.T) {
	for range 50 {
		resp, err := http.Get(appURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("restaurant-reviews did not become healthy")
}

// newBrowser returns a client that keeps cookies and follows redirects
func newBrowser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// noRedirect stops the client at the first redirect response
func noRedirect(c *http.Client) *http.Client {
	clone := *c
	clone.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &clone
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func mustGet(t *testing.T, c *http.Client, path string) *http.Response {
	t.Helper()
	trace(t, "GET %s", path)
	resp, err := c.Get(appURL + path)
	require.NoError(t, err, fmt.Sprintf("GET %s", path))
	return resp
}

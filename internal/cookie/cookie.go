package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
)

// SessionCookie is the name of the cookie carrying the sealed session bag.
const SessionCookie = "restaurant_session"

// MaxSize is the largest name=value pair browsers reliably store.
const MaxSize = 4096

// ErrTooLarge is returned instead of setting a cookie the browser would drop.
var ErrTooLarge = errors.New("session cookie exceeds browser size limit")

// Size is the number of bytes the browser counts against MaxSize.
func Size(value string) int {
	return len(SessionCookie) + 1 + len(value)
}

// CheckSize returns ErrTooLarge when value would not be stored by browsers.
func CheckSize(value string) error {
	if size := Size(value); size > MaxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, MaxSize)
	}
	return nil
}

// SetSession sets the session cookie. secure is false only for plain-HTTP
// development hosts.
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration, secure bool) error {
	if err := CheckSize(value); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
		"size":     Size(value),
	})
	return nil
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

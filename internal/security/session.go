// Package security provides cookie session management, password-based
// account handling and the pre-shared-key check for device endpoints.
package security

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	sessionName = "coughwatch-session"
	userIDKey   = "user_id"
)

// createSessionKey derives a 32-byte cookie signing key from the
// configured secret.
func createSessionKey(seed string) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(seed))
	return hasher.Sum(nil)
}

// buildSessionOptions creates session options with standard security settings.
// The secure parameter controls whether cookies require HTTPS.
// The maxAge parameter sets the session duration in seconds.
func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// SessionManager stores the signed-in user id in an HttpOnly cookie.
type SessionManager struct {
	store *sessions.CookieStore
}

// NewSessionManager creates a session manager. maxAge is the session
// duration in seconds; secure requires HTTPS for the cookie.
func NewSessionManager(secret string, maxAge int, secure bool) *SessionManager {
	store := sessions.NewCookieStore(createSessionKey(secret))
	store.Options = buildSessionOptions(secure, maxAge)
	return &SessionManager{store: store}
}

// SignIn binds the session cookie to the given user.
func (m *SessionManager) SignIn(c echo.Context, userID string) error {
	session, err := m.store.Get(c.Request(), sessionName)
	if err != nil {
		// A malformed cookie yields a fresh session; proceed with it.
		session, _ = m.store.New(c.Request(), sessionName)
	}
	session.Values[userIDKey] = userID
	return session.Save(c.Request(), c.Response())
}

// SignOut expires the session cookie.
func (m *SessionManager) SignOut(c echo.Context) error {
	session, err := m.store.Get(c.Request(), sessionName)
	if err != nil {
		return nil
	}
	delete(session.Values, userIDKey)
	session.Options.MaxAge = -1
	return session.Save(c.Request(), c.Response())
}

// UserID returns the signed-in user id, or false when the request carries
// no valid session.
func (m *SessionManager) UserID(c echo.Context) (string, bool) {
	session, err := m.store.Get(c.Request(), sessionName)
	if err != nil {
		return "", false
	}
	userID, ok := session.Values[userIDKey].(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

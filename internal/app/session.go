package app

import "net/http"

type sessionKey string

const (
	SessionKeyGuest = sessionKey("guest")
)

func (s sessionKey) String() string {
	return string(s)
}

// holderID returns the identity that owns reservations made in this
// session. Authentication is an upstream concern; from the engine's view
// the session token is an opaque holder identity.
func (app *Application) holderID(r *http.Request) string {
	return app.sessionManager.Token(r.Context())
}

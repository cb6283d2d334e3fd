// Package identity gives every browser an anonymous player id kept in a cookie.
package identity

import (
	"net/http"

	"github.com/google/uuid"
)

const DefaultCookieName = "quicktrivia_id"

// CookieProvider reads the player id from a cookie and issues a new one
// when the request has none.
type CookieProvider struct {
	name   string
	secure bool
}

func NewCookieProvider(name string, secure bool) *CookieProvider {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieProvider{name: name, secure: secure}
}

// PlayerID returns the existing id, or sets a fresh uuid cookie on w.
// Malformed ids are replaced.
func (p *CookieProvider) PlayerID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := p.Existing(r); ok {
		return id
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.name,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   365 * 24 * 60 * 60,
	})
	return id.String()
}

// Existing returns the id already carried by r, without issuing one.
func (p *CookieProvider) Existing(r *http.Request) (string, bool) {
	c, err := r.Cookie(p.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

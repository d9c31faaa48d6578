// Package access issues and checks signed grants that let a browser reopen
// private sessions it has already unlocked with a code.
package access

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName  = "nocel_access"
	MaxSessions = 20

	issuer = "nocel"
)

var ErrInvalidGrant = errors.New("access: invalid grant")

// Claims is the JWT payload: the private session names the holder unlocked.
type Claims struct {
	Sessions []string `json:"sessions"`
	jwt.RegisteredClaims
}

// Grants signs and validates HS256 grant cookies. A nil *Grants means grants
// are disabled and every private session is reachable by URL.
type Grants struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New returns nil when secret is empty.
func New(secret string, ttl time.Duration) *Grants {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Grants{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces time.Now for token timestamps.
func (g *Grants) WithClock(now func() time.Time) *Grants {
	if g != nil {
		g.now = now
	}
	return g
}

// Enabled reports whether grants are enforced.
func (g *Grants) Enabled() bool { return g != nil }

// Allowed reports whether r carries a valid grant for the private session name.
func (g *Grants) Allowed(r *http.Request, name string) bool {
	if g == nil {
		return true
	}
	return slices.Contains(g.sessions(r), name)
}

// Grant adds name to the grant carried by r and writes the refreshed cookie.
// The oldest names are dropped beyond MaxSessions.
func (g *Grants) Grant(w http.ResponseWriter, r *http.Request, name string) error {
	if g == nil {
		return nil
	}
	names := slices.DeleteFunc(g.sessions(r), func(n string) bool { return n == name })
	names = append(names, name)
	if len(names) > MaxSessions {
		names = names[len(names)-MaxSessions:]
	}

	token, err := g.Sign(names)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Sign issues a token for names.
func (g *Grants) Sign(names []string) (string, error) {
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Sessions: names,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("access: sign: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its session names.
func (g *Grants) Parse(tokenString string) ([]string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithTimeFunc(g.now),
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidGrant
	}
	return claims.Sessions, nil
}

func (g *Grants) sessions(r *http.Request) []string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	names, err := g.Parse(cookie.Value)
	if err != nil {
		return nil
	}
	return names
}

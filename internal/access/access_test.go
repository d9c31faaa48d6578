package access

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func grantCookie(t *testing.T, g *Grants, prev *http.Cookie, name string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/access-private", nil)
	if prev != nil {
		req.AddCookie(prev)
	}
	w := httptest.NewRecorder()
	if err := g.Grant(w, req, name); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("grant cookie not set")
	return nil
}

func requestWith(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/session/private/Diary", nil)
	if c != nil {
		req.AddCookie(c)
	}
	return req
}

func TestDisabledAllowsEverything(t *testing.T) {
	var g *Grants = New("", time.Hour)
	if g.Enabled() {
		t.Fatal("expected disabled grants")
	}
	if !g.Allowed(requestWith(nil), "Diary") {
		t.Error("disabled grants must allow")
	}
	if err := g.Grant(httptest.NewRecorder(), requestWith(nil), "Diary"); err != nil {
		t.Errorf("Grant on nil: %v", err)
	}
}

func TestGrantAndCheck(t *testing.T) {
	g := New("secret", time.Hour)
	if g.Allowed(requestWith(nil), "Diary") {
		t.Error("no cookie must not allow")
	}

	c := grantCookie(t, g, nil, "Diary")
	if !g.Allowed(requestWith(c), "Diary") {
		t.Error("granted session not allowed")
	}
	if g.Allowed(requestWith(c), "Other") {
		t.Error("ungranted session allowed")
	}

	c = grantCookie(t, g, c, "Other")
	if !g.Allowed(requestWith(c), "Diary") || !g.Allowed(requestWith(c), "Other") {
		t.Error("grant should accumulate sessions")
	}
}

func TestGrantKeepsNewest(t *testing.T) {
	g := New("secret", time.Hour)
	var c *http.Cookie
	for i := range MaxSessions + 5 {
		c = grantCookie(t, g, c, fmt.Sprintf("s%d", i))
	}
	names, err := g.Parse(c.Value)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(names) != MaxSessions {
		t.Fatalf("len = %d, want %d", len(names), MaxSessions)
	}
	if names[0] != "s5" || names[len(names)-1] != fmt.Sprintf("s%d", MaxSessions+4) {
		t.Errorf("unexpected window %v", names)
	}
}

func TestTamperedAndExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New("secret", time.Hour).WithClock(func() time.Time { return now })
	token, err := g.Sign([]string{"Diary"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other := New("different", time.Hour).WithClock(func() time.Time { return now })
	if _, err := other.Parse(token); err == nil {
		t.Error("token signed with another secret accepted")
	}

	later := New("secret", time.Hour).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := later.Parse(token); err == nil {
		t.Error("expired token accepted")
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testCookie = SessionCookie{Name: "academy_session", Secure: true}

func TestCredential_CookieWinsOverBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "academy_session", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	tok, src := testCookie.Credential(req)
	if tok != "from-cookie" || src != SourceCookie {
		t.Fatalf("expected cookie credential, got %q (%d)", tok, src)
	}
}

func TestCredential_BearerFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc.def.ghi")

	tok, src := testCookie.Credential(req)
	if tok != "abc.def.ghi" || src != SourceBearer {
		t.Fatalf("expected bearer credential, got %q (%d)", tok, src)
	}
}

func TestCredential_InvalidHeaderFormat(t *testing.T) {
	for _, h := range []string{"Token abc", "Bearer", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", h)
		if tok, src := testCookie.Credential(req); tok != "" || src != SourceNone {
			t.Fatalf("%q: expected no credential, got %q", h, tok)
		}
	}
}

func TestCredential_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tok, src := testCookie.Credential(req); tok != "" || src != SourceNone {
		t.Fatalf("expected no credential, got %q", tok)
	}
}

func TestSessionCookie_WriteAndClear(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	testCookie.Write(c, "tok", time.Now().Add(time.Hour))
	header := rec.Header().Get("Set-Cookie")
	for _, want := range []string{"academy_session=tok", "HttpOnly", "Secure", "SameSite=Lax", "Path=/"} {
		if !strings.Contains(header, want) {
			t.Fatalf("expected %q in %q", want, header)
		}
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	testCookie.Clear(c)
	if header := rec.Header().Get("Set-Cookie"); !strings.Contains(header, "Max-Age=0") {
		t.Fatalf("expected expiring cookie, got %q", header)
	}
}

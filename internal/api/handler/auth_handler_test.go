package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chaiacademy/academy/internal/api/middleware"
	"github.com/chaiacademy/academy/internal/core/domain"
	"github.com/chaiacademy/academy/internal/core/ports"
)

var testCookie = middleware.SessionCookie{Name: "academy_session"}

type stubAuthService struct {
	signupFn func(ctx context.Context, in ports.SignupInput) (*domain.User, error)
	loginFn  func(ctx context.Context, email, password string) (*ports.LoginResult, error)
}

func (s *stubAuthService) Signup(ctx context.Context, in ports.SignupInput) (*domain.User, error) {
	return s.signupFn(ctx, in)
}

func (s *stubAuthService) Resolve(ctx context.Context, email, password string) (domain.Identity, error) {
	res, err := s.loginFn(ctx, email, password)
	if err != nil {
		return domain.Identity{}, err
	}
	return res.User, nil
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	return s.loginFn(ctx, email, password)
}

type stubSessions struct {
	sessions map[string]domain.Session
}

func (s *stubSessions) Issue(domain.Identity) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not implemented")
}

func (s *stubSessions) Decode(token string) (domain.Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return domain.Session{}, domain.ErrInvalidSession
	}
	return sess, nil
}

func (s *stubSessions) Refresh(domain.Session) (string, time.Time, bool, error) {
	return "", time.Time{}, false, nil
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func successfulLogin(_ context.Context, email, password string) (*ports.LoginResult, error) {
	if email != "ana@example.com" || password != "correct-horse" {
		return nil, domain.ErrInvalidCredentials
	}
	return &ports.LoginResult{
		Token:     "signed.token.value",
		ExpiresAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		User:      domain.Identity{ID: "u1", Email: email, Name: "Ana", Role: domain.RoleInstructor},
	}, nil
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		signupFn: func(_ context.Context, in ports.SignupInput) (*domain.User, error) {
			if in.Email != "ana@example.com" || in.Role != domain.RoleInstructor || in.Department != "Math" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &domain.User{ID: "u1", Email: in.Email, Name: in.Name, Role: in.Role, PasswordHash: "$2a$10$hash"}, nil
		},
	}
	h := NewAuthHandler(stub, &stubSessions{}, testCookie, "/login")

	req := jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"email":"ana@example.com","name":"Ana","password":"correct-horse","department":"Math","role":"INSTRUCTOR"}`)
	rec := httptest.NewRecorder()
	if err := h.Signup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}
	var resp map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["user"]["role"] != "INSTRUCTOR" || resp["user"]["id"] != "u1" {
		t.Fatalf("unexpected user payload: %+v", resp)
	}
}

func TestAuthHandler_Signup_ValidationError(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		signupFn: func(context.Context, ports.SignupInput) (*domain.User, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(stub, &stubSessions{}, testCookie, "/login")

	cases := map[string]string{
		"bad email":      `{"email":"nope","name":"Ana","password":"correct-horse"}`,
		"short password": `{"email":"ana@example.com","name":"Ana","password":"short"}`,
		"admin role":     `{"email":"ana@example.com","name":"Ana","password":"correct-horse","role":"ADMIN"}`,
		"missing name":   `{"email":"ana@example.com","password":"correct-horse"}`,
	}
	for name, body := range cases {
		rec := httptest.NewRecorder()
		if err := h.Signup(e.NewContext(jsonRequest(http.MethodPost, "/api/auth/signup", body), rec)); err != nil {
			t.Fatalf("%s: handler error: %v", name, err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestAuthHandler_Signup_UserExists(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		signupFn: func(context.Context, ports.SignupInput) (*domain.User, error) {
			return nil, domain.ErrUserExists
		},
	}
	h := NewAuthHandler(stub, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/auth/signup", `{"email":"ana@example.com","name":"Ana","password":"correct-horse"}`)
	if err := h.Signup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestAuthHandler_Signup_StoreFailurePropagates(t *testing.T) {
	e := newTestEcho()
	storeErr := errors.New("connection reset")
	stub := &stubAuthService{
		signupFn: func(context.Context, ports.SignupInput) (*domain.User, error) {
			return nil, storeErr
		},
	}
	h := NewAuthHandler(stub, &stubSessions{}, testCookie, "/login")

	req := jsonRequest(http.MethodPost, "/api/auth/signup", `{"email":"ana@example.com","name":"Ana","password":"correct-horse"}`)
	err := h.Signup(e.NewContext(req, httptest.NewRecorder()))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to reach the error handler, got %v", err)
	}
}

func TestAuthHandler_Login_JSON(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{loginFn: successfulLogin}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"correct-horse"}`)
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "signed.token.value" {
		t.Fatalf("unexpected token: %v", resp["token"])
	}
	user, _ := resp["user"].(map[string]any)
	if user["role"] != "INSTRUCTOR" {
		t.Fatalf("unexpected user: %+v", user)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != testCookie.Name || cookies[0].Value != "signed.token.value" || !cookies[0].HttpOnly {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{loginFn: successfulLogin}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong"}`)
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid email or password") {
		t.Fatalf("expected generic message, got %s", rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no cookie expected on failure")
	}
}

func TestAuthHandler_Login_FormRedirectsToCallback(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{loginFn: successfulLogin}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := formRequest("/api/auth/login", url.Values{
		"email":       {"ana@example.com"},
		"password":    {"correct-horse"},
		"callbackUrl": {"/instructor/courses"},
	})
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/instructor/courses" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestAuthHandler_Login_FormFailureReturnsToLogin(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{loginFn: successfulLogin}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := formRequest("/api/auth/login", url.Values{
		"email":       {"ana@example.com"},
		"password":    {"wrong"},
		"callbackUrl": {"/dashboard"},
	})
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	if err != nil {
		t.Fatalf("bad location: %v", err)
	}
	if rec.Code != http.StatusSeeOther || loc.Path != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", rec.Code, loc)
	}
	if loc.Query().Get("error") != "CredentialsSignin" || loc.Query().Get("callbackUrl") != "/dashboard" {
		t.Fatalf("unexpected query %q", loc.RawQuery)
	}
}

func TestAuthHandler_Login_StoreFailurePropagates(t *testing.T) {
	e := newTestEcho()
	storeErr := errors.New("resolve identity: timeout")
	stub := &stubAuthService{
		loginFn: func(context.Context, string, string) (*ports.LoginResult, error) {
			return nil, storeErr
		},
	}
	h := NewAuthHandler(stub, &stubSessions{}, testCookie, "/login")

	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"x"}`)
	if err := h.Login(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthHandler_Login_FormRejectsTabbedCallback(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{loginFn: successfulLogin}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	req := formRequest("/api/auth/login", url.Values{
		"email":       {"ana@example.com"},
		"password":    {"correct-horse"},
		"callbackUrl": {"/\t/evil.example"},
	})
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/dashboard" {
		t.Fatalf("expected fallback to /dashboard, got %q", loc)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newTestEcho()
	h := NewAuthHandler(&stubAuthService{}, &stubSessions{}, testCookie, "/login")

	rec := httptest.NewRecorder()
	if err := h.Logout(e.NewContext(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cookies)
	}
}

func TestAuthHandler_Session(t *testing.T) {
	e := newTestEcho()
	id := domain.Identity{ID: "u1", Email: "ana@example.com", Role: domain.RoleStaff}
	sessions := &stubSessions{sessions: map[string]domain.Session{
		"good": {Identity: id, ExpiresAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
	}}
	h := NewAuthHandler(&stubAuthService{}, sessions, testCookie, "/login")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	if err := h.Session(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	user, _ := resp["user"].(map[string]any)
	if rec.Code != http.StatusOK || user["id"] != "u1" || resp["token"] != nil {
		t.Fatalf("unexpected session payload: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: "forged"})
	rec = httptest.NewRecorder()
	if err := h.Session(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("expected empty session, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSafeCallback(t *testing.T) {
	cases := map[string]string{
		"":                     "/dashboard",
		"/profile":             "/profile",
		"/admin/users?tab=1":   "/admin/users?tab=1",
		"//evil.example":       "/dashboard",
		"https://evil.example": "/dashboard",
		"/\\evil.example":      "/dashboard",
		"/\t/evil.example":     "/dashboard",
		"/\n/evil.example":     "/dashboard",
		"/\r\n/evil.example":   "/dashboard",
		"/\x00admin":           "/dashboard",
		"/\x7f/evil.example":   "/dashboard",
		"/%2F/evil.example":    "/dashboard",
	}
	for in, want := range cases {
		if got := safeCallback(in); got != want {
			t.Fatalf("safeCallback(%q) = %q, want %q", in, got, want)
		}
	}
}

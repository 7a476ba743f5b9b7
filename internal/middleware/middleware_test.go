package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAuthJWT(t *testing.T) {
	secret := "test-secret"
	var seen, email string
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		email = UserEmailFromContext(r.Context())
	}))

	token, err := SignJWT(secret, TokenClaims{Sub: "user-123", Email: "smith@example.com", Exp: time.Now().Add(time.Hour).Unix(), Issuer: TokenIssuer})
	if err != nil {
		t.Fatalf("SignJWT() error: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not.a.token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/generation", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
	if seen != "user-123" || email != "smith@example.com" {
		t.Fatalf("context user = %q/%q", seen, email)
	}
}

func TestVerifyJWTRejectsTamperingAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := SignJWT("secret-a", TokenClaims{Sub: "user-1", Exp: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("SignJWT() error: %v", err)
	}
	if _, err := verifyJWTAt("secret-a", token, now); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if _, err := verifyJWTAt("secret-b", token, now); err != errBadSignature {
		t.Fatalf("wrong secret: got %v", err)
	}
	if _, err := verifyJWTAt("secret-a", token, now.Add(2*time.Minute)); err != errExpiredToken {
		t.Fatalf("expired: got %v", err)
	}
	noSub, _ := SignJWT("secret-a", TokenClaims{Exp: now.Add(time.Minute).Unix()})
	if _, err := verifyJWTAt("secret-a", noSub, now); err == nil {
		t.Fatal("token without subject accepted")
	}
}

func TestRequestIDReusesWellFormedHeader(t *testing.T) {
	var got string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got != "abc-123" || rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("request id = %q, header %q", got, rr.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == "" || strings.Contains(got, " ") {
		t.Fatalf("expected generated id, got %q", got)
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestID(Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	line := buf.String()
	for _, want := range []string{`"status":418`, `"level":"warn"`, `"bytes":15`, `"path":"/v1/healthz"`, `"request_id":`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %s missing %s", line, want)
		}
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://forge.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/generation", nil)
	req.Header.Set("Origin", "https://forge.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://forge.example.com" {
		t.Fatalf("allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected CORS header for unknown origin")
	}
}

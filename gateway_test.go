package goSession

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeDetail(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Email already registered"}`:                                                    "Email already registered",
		`{"detail":[{"loc":["body","password"],"msg":"too short","type":"x"},{"msg":"no digit"}]}`: "too short; no digit",
		`{"detail":[]}`:   "",
		`{"message":"x"}`: "",
		`not json`:        "",
	}
	for raw, want := range cases {
		if got := decodeDetail([]byte(raw)); got != want {
			t.Fatalf("decodeDetail(%s) = %q, want %q", raw, got, want)
		}
	}
}

func stubGateway(t *testing.T, h http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig().Gateway
	cfg.BaseURL = srv.URL + "/"
	return NewHTTPGateway(cfg, srv.Client())
}

func answer(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestGatewayLoginClassification(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
		target error
		msg    string
	}{
		{"two factor", 403, `{"detail":"2FA Required"}`, KindTwoFactorRequired, ErrTwoFactorRequired, "Two-factor code required."},
		{"forbidden", 403, `{"detail":"Account disabled"}`, KindCredential, ErrCredential, "Account disabled"},
		{"bad password", 401, `{"detail":"Incorrect username or password"}`, KindCredential, ErrCredential, "Incorrect username or password"},
		{"no detail", 401, `{}`, KindCredential, ErrCredential, "Invalid credentials"},
		{"throttled", 429, `{"detail":"Too many login attempts. Please try again later."}`, KindValidation, ErrValidation, "Too many login attempts. Please try again later."},
		{"server", 500, `oops`, KindService, ErrService, "Login failed. Please try again."},
		{"no token", 200, `{"token_type":"bearer"}`, KindService, ErrService, "Login failed. Please try again."},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := stubGateway(t, answer(tc.status, tc.body))
			_, err := g.Login(context.Background(), LoginRequest{Identifier: "ada", Password: "x"})
			if KindOf(err) != tc.kind || !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if Message(err) != tc.msg {
				t.Fatalf("expected message %q, got %q", tc.msg, Message(err))
			}
			var e *Error
			if !errors.As(err, &e) || e.Status != tc.status {
				t.Fatalf("expected status %d on %v", tc.status, err)
			}
		})
	}
}

func TestGatewayCurrentUser(t *testing.T) {
	g := stubGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			answer(401, `{"detail":"Not authenticated"}`)(w, r)
			return
		}
		answer(200, `{"id":42,"email":"ada@example.com","username":"ada","full_name":"Ada Lovelace","role":"analyst"}`)(w, r)
	})

	u, err := g.CurrentUser(context.Background(), "tok")
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if u.ID != "42" || u.FullName != "Ada Lovelace" || u.Role != "analyst" {
		t.Fatalf("unexpected user %+v", u)
	}

	_, err = g.CurrentUser(context.Background(), "other")
	if !errors.Is(err, ErrAuthorizationExpired) || Message(err) != "Not authenticated" {
		t.Fatalf("expected authorization expired, got %v", err)
	}
}

func TestGatewayHonorsDeadline(t *testing.T) {
	block := make(chan struct{})
	g := stubGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.ForgotPassword(ctx, "ada@example.com"); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := newError(KindValidation, 422, "bad", ErrPasswordMismatch)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrPasswordMismatch) || errors.Is(err, ErrCredential) {
		t.Fatalf("unexpected matching for %v", err)
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Fatalf("plain errors have no kind")
	}
	if Message(nil) != "" || Message(errors.New("plain")) != "plain" {
		t.Fatalf("unexpected Message fallback")
	}
	if KindTwoFactorRequired.String() != "two_factor_required" {
		t.Fatalf("unexpected kind name %q", KindTwoFactorRequired.String())
	}
}

package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueAndParse(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, Secret: testSecret, Issuer: "authtest"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, issued, err := m.Issue("u1", "a@example.com", "analyst")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" || claims.Role != "analyst" || claims.ID != issued.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other, _, _ := m.Issue("u1", "", "")
	if o, _ := Inspect(other); o.ID == issued.ID {
		t.Fatalf("expected a fresh jti per token")
	}
}

func TestParseRejectsForeignTokens(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, Secret: testSecret, Issuer: "authtest"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	exp := gjwt.NewNumericDate(time.Now().Add(time.Minute))

	for name, sign := range map[string]func() (string, error){
		"other secret": func() (string, error) {
			c := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{Issuer: "authtest", ExpiresAt: exp}}
			return gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString([]byte("another-secret-another-secret-xx"))
		},
		"other algorithm": func() (string, error) {
			c := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{Issuer: "authtest", ExpiresAt: exp}}
			return gjwt.NewWithClaims(gjwt.SigningMethodHS512, c).SignedString(testSecret)
		},
		"other issuer": func() (string, error) {
			c := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: exp}}
			return gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString(testSecret)
		},
		"no expiry": func() (string, error) {
			c := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{Issuer: "authtest"}}
			return gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString(testSecret)
		},
	} {
		token, err := sign()
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if _, err := m.Parse(token); err == nil {
			t.Fatalf("%s: expected the token to be rejected", name)
		}
	}
}

func TestParseHonorsClockAndLeeway(t *testing.T) {
	now := time.Now()
	m, err := NewManager(Config{
		AccessTTL: time.Minute,
		Secret:    testSecret,
		Leeway:    10 * time.Second,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.Issue("u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(65 * time.Second)
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("token within leeway should parse: %v", err)
	}
	now = now.Add(10 * time.Second)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	for name, cfg := range map[string]Config{
		"short secret": {AccessTTL: time.Minute, Secret: []byte("short")},
		"no ttl":       {Secret: testSecret},
		"huge leeway":  {AccessTTL: time.Minute, Secret: testSecret, Leeway: time.Hour},
	} {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestInspectReadsExpiryWithoutKey(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	m, err := NewManager(Config{AccessTTL: time.Hour, Secret: testSecret, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, issued, err := m.Issue("u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	exp, ok := ExpiresAt(token)
	if !ok {
		t.Fatal("expected exp claim")
	}
	if !exp.Equal(issued.ExpiresAt.Time) {
		t.Fatalf("exp = %v, want %v", exp, issued.ExpiresAt.Time)
	}
	claims, _ := Inspect(token)
	if got := claims.Remaining(now.Add(45 * time.Minute)); got != 15*time.Minute {
		t.Fatalf("remaining = %v, want 15m", got)
	}
	if got := claims.Remaining(now.Add(2 * time.Hour)); got != 0 {
		t.Fatalf("remaining after exp = %v, want 0", got)
	}
}

func TestInspectOpaqueToken(t *testing.T) {
	if _, err := Inspect("not-a-jwt"); !errors.Is(err, ErrNotJWT) {
		t.Fatalf("expected ErrNotJWT, got %v", err)
	}
	if _, ok := ExpiresAt("opaque"); ok {
		t.Fatal("opaque token must not report an expiry")
	}
}

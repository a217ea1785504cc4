package authtest

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnknownAccount is returned by the seeding helpers for an identifier nobody registered.
	ErrUnknownAccount = errors.New("authtest: unknown account")
	// ErrDuplicateAccount is returned by AddAccount when the email or username is taken.
	ErrDuplicateAccount = errors.New("authtest: duplicate account")
)

// Config configures a fake authentication service.
type Config struct {
	Issuer string
	// Secret is the HS256 signing key. Empty means a random key.
	Secret       []byte
	TokenTTL     time.Duration
	ResetCodeTTL time.Duration
	// BcryptCost defaults to bcrypt.MinCost to keep tests fast.
	BcryptCost int
	// Policy nil means password.DefaultPolicy.
	Policy *password.Policy

	// Redis enables per-identifier login throttling when set.
	Redis            redis.UniversalClient
	MaxLoginAttempts int
	LoginWindow      time.Duration

	Now    func() time.Time
	Logger *slog.Logger
	// OnResetCode receives every issued reset code; it stands in for email delivery.
	OnResetCode func(email, code string)
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = "goSession-authtest"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 30 * time.Minute
	}
	if c.ResetCodeTTL <= 0 {
		c.ResetCodeTTL = 15 * time.Minute
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.MinCost
	}
	if c.Policy == nil {
		p := password.DefaultPolicy()
		c.Policy = &p
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = 5
	}
	if c.LoginWindow <= 0 {
		c.LoginWindow = 15 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

type account struct {
	id        string
	email     string
	username  string
	fullName  string
	role      string
	hash      string
	otpSecret string
	createdAt time.Time
}

type resetCode struct {
	code      string
	expiresAt time.Time
}

// Account seeds a user directly, bypassing the password policy.
type Account struct {
	Email    string
	Username string
	FullName string
	Password string
	Role     string
}

// Server is an in-memory implementation of the authentication service the session manager
// talks to. It is meant for tests and local development only.
type Server struct {
	cfg     Config
	tokens  *jwt.Manager
	hasher  *password.Bcrypt
	limiter *rate.Limiter
	router  chi.Router

	mu         sync.Mutex
	accounts   map[string]*account
	byEmail    map[string]string
	byUsername map[string]string
	resets     map[string]resetCode
	issued     map[string][]string
	revoked    map[string]struct{}
	failNext   map[string]int
	requests   map[string]int
}

// New creates a fake service.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	secret := cfg.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL: cfg.TokenTTL,
		Secret:    secret,
		Issuer:    cfg.Issuer,
		Now:       cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		tokens:     tokens,
		hasher:     password.NewBcrypt(cfg.BcryptCost),
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		resets:     make(map[string]resetCode),
		issued:     make(map[string][]string),
		revoked:    make(map[string]struct{}),
		failNext:   make(map[string]int),
		requests:   make(map[string]int),
	}
	if cfg.Redis != nil {
		s.limiter = rate.New(cfg.Redis, rate.Config{
			Prefix:      "authtest:login",
			MaxAttempts: cfg.MaxLoginAttempts,
			Window:      cfg.LoginWindow,
		})
	}
	s.router = s.routes()
	return s, nil
}

// Start serves a new fake service on an httptest server that is closed with tb.
// It returns the service and its base URL.
func Start(tb testing.TB, cfg Config) (*Server, string) {
	tb.Helper()
	s, err := New(cfg)
	if err != nil {
		tb.Fatalf("authtest: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	tb.Cleanup(ts.Close)
	return s, ts.URL
}

// Handler returns the HTTP handler of the service.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Tokens returns the token issuer, for tests that need to mint or inspect tokens.
func (s *Server) Tokens() *jwt.Manager {
	return s.tokens
}

// AddAccount creates an account and returns its id.
func (s *Server) AddAccount(a Account) (string, error) {
	if a.Email == "" || a.Username == "" || a.Password == "" {
		return "", errors.New("authtest: email, username and password are required")
	}
	hash, err := s.hasher.Hash(a.Password)
	if err != nil {
		return "", err
	}
	if a.Role == "" {
		a.Role = "analyst"
	}
	return s.insert(&account{
		id:        newID(),
		email:     a.Email,
		username:  a.Username,
		fullName:  a.FullName,
		role:      a.Role,
		hash:      hash,
		createdAt: s.cfg.Now(),
	})
}

func (s *Server) insert(acc *account) (string, error) {
	email, username := normalize(acc.email), normalize(acc.username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return "", ErrDuplicateAccount
	}
	if _, ok := s.byUsername[username]; ok {
		return "", ErrDuplicateAccount
	}
	s.accounts[acc.id] = acc
	s.byEmail[email] = acc.id
	s.byUsername[username] = acc.id
	return acc.id, nil
}

// EnableTwoFactor turns on TOTP for the account and returns the base32 secret.
func (s *Server) EnableTwoFactor(identifier string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.lookupLocked(identifier)
	if acc == nil {
		return "", ErrUnknownAccount
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.cfg.Issuer, AccountName: acc.email})
	if err != nil {
		return "", err
	}
	acc.otpSecret = key.Secret()
	return acc.otpSecret, nil
}

// TOTPCode returns the valid second-factor code of the account at time at.
func (s *Server) TOTPCode(identifier string, at time.Time) (string, error) {
	s.mu.Lock()
	acc := s.lookupLocked(identifier)
	var secret string
	if acc != nil {
		secret = acc.otpSecret
	}
	s.mu.Unlock()

	if acc == nil || secret == "" {
		return "", ErrUnknownAccount
	}
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// ResetCode returns the outstanding password-reset code of email.
func (s *Server) ResetCode(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.resets[normalize(email)]
	return rc.code, ok
}

// RevokeToken makes the service answer 401 to token from now on.
func (s *Server) RevokeToken(token string) error {
	claims, err := jwt.Inspect(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.revoked[claims.ID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// RevokeAccount revokes every token issued to the account and returns how many there were.
func (s *Server) RevokeAccount(identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.lookupLocked(identifier)
	if acc == nil {
		return 0, ErrUnknownAccount
	}
	return s.revokeLocked(acc.id), nil
}

func (s *Server) revokeLocked(userID string) int {
	ids := s.issued[userID]
	for _, jti := range ids {
		s.revoked[jti] = struct{}{}
	}
	delete(s.issued, userID)
	return len(ids)
}

// FailNext makes the next request to path answer status with a generic detail.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	s.failNext[path] = status
	s.mu.Unlock()
}

// Requests returns how many requests reached path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Server) lookupLocked(identifier string) *account {
	key := normalize(identifier)
	var id string
	if strings.Contains(key, "@") {
		id = s.byEmail[key]
	} else {
		id = s.byUsername[key]
	}
	if id == "" {
		return nil
	}
	return s.accounts[id]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

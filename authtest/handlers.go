package authtest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
)

const (
	detailBadCredentials = "Incorrect username or password"
	detailTwoFactor      = "2FA Required"
	detailBadTwoFactor   = "Invalid 2FA Code"
	detailBadResetCode   = "Invalid or expired OTP"
	detailTooMany        = "Too many login attempts. Please try again later."
)

// Paths served by [Server].
const (
	PathLogin          = "/auth/login"
	PathRegister       = "/auth/register"
	PathMe             = "/auth/me"
	PathForgotPassword = "/auth/forgot-password"
	PathResetPassword  = "/auth/reset-password"
	PathTransactions   = "/api/transactions"
)

var errRevoked = errors.New("token revoked")

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Post(PathLogin, s.handleLogin)
	r.Post(PathRegister, s.handleRegister)
	r.Post(PathForgotPassword, s.handleForgotPassword)
	r.Post(PathResetPassword, s.handleResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(s))
		r.Get(PathMe, s.handleMe)
		r.Get(PathTransactions, s.handleTransactions)
	})
	return r
}

// Verify implements middleware.Verifier: the token must be valid, unrevoked and belong to an
// existing account.
func (s *Server) Verify(_ context.Context, token string) (*jwt.AccessClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[claims.ID]; ok {
		return nil, errRevoked
	}
	if _, ok := s.accounts[claims.Subject]; !ok {
		return nil, ErrUnknownAccount
	}
	return claims, nil
}

// count records the request and applies a pending FailNext.
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		status, fail := s.failNext[r.URL.Path]
		delete(s.failNext, r.URL.Path)
		s.mu.Unlock()

		if fail {
			writeDetail(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	OTPCode         string `json:"otp_code"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	subject := normalize(req.UsernameOrEmail)

	if s.limiter != nil {
		if err := s.limiter.Check(ctx, subject); err != nil {
			s.limited(w, err)
			return
		}
	}

	s.mu.Lock()
	acc := s.lookupLocked(subject)
	var snapshot account
	if acc != nil {
		snapshot = *acc
	}
	s.mu.Unlock()

	if acc == nil || s.hasher.Verify(req.Password, snapshot.hash) != nil {
		s.failedLogin(ctx, subject)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, detailBadCredentials)
		return
	}

	if snapshot.otpSecret != "" {
		if strings.TrimSpace(req.OTPCode) == "" {
			writeDetail(w, http.StatusForbidden, detailTwoFactor)
			return
		}
		ok, err := totp.ValidateCustom(strings.TrimSpace(req.OTPCode), snapshot.otpSecret, s.cfg.Now(), totpOpts)
		if err != nil || !ok {
			s.failedLogin(ctx, subject)
			writeDetail(w, http.StatusUnauthorized, detailBadTwoFactor)
			return
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, subject); err != nil {
			s.cfg.Logger.Warn("authtest: reset login counter failed", "error", err)
		}
	}

	token, claims, err := s.tokens.Issue(snapshot.id, snapshot.email, snapshot.role)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	s.mu.Lock()
	s.issued[snapshot.id] = append(s.issued[snapshot.id], claims.ID)
	s.mu.Unlock()

	s.cfg.Logger.Info("authtest: login", "user_id", snapshot.id)
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) failedLogin(ctx context.Context, subject string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Fail(ctx, subject); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		s.cfg.Logger.Warn("authtest: record failed login", "error", err)
	}
}

func (s *Server) limited(w http.ResponseWriter, err error) {
	if errors.Is(err, rate.ErrRateLimited) {
		writeDetail(w, http.StatusTooManyRequests, detailTooMany)
		return
	}
	writeDetail(w, http.StatusServiceUnavailable, "Service unavailable")
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	var problems []fieldError
	for field, value := range map[string]string{
		"email":     req.Email,
		"username":  req.Username,
		"full_name": req.FullName,
		"password":  req.Password,
	} {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, fieldError{Loc: []string{"body", field}, Msg: "Field required", Type: "missing"})
		}
	}
	if len(problems) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": sortFieldErrors(problems)})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeFieldErrors(w, "email", []string{"value is not a valid email address"})
		return
	}
	if violations := s.cfg.Policy.Check(req.Password); len(violations) > 0 {
		writeFieldErrors(w, "password", violations)
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not create account")
		return
	}

	s.mu.Lock()
	emailTaken := s.byEmail[normalize(req.Email)] != ""
	usernameTaken := s.byUsername[normalize(req.Username)] != ""
	s.mu.Unlock()
	switch {
	case emailTaken:
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	case usernameTaken:
		writeDetail(w, http.StatusBadRequest, "Username already taken")
		return
	}

	acc := &account{
		id:        newID(),
		email:     strings.TrimSpace(req.Email),
		username:  strings.TrimSpace(req.Username),
		fullName:  strings.TrimSpace(req.FullName),
		role:      "analyst",
		hash:      hash,
		createdAt: s.cfg.Now(),
	}
	if _, err := s.insert(acc); err != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.cfg.Logger.Info("authtest: registered", "user_id", acc.id)
	writeJSON(w, http.StatusCreated, profile(acc))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())

	s.mu.Lock()
	acc, ok := s.accounts[claims.Subject]
	var snapshot account
	if ok {
		snapshot = *acc
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, profile(&snapshot))
}

type forgotRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decode(w, r, &req) {
		return
	}
	email := normalize(req.Email)
	if email == "" {
		writeFieldErrors(w, "email", []string{"Field required"})
		return
	}

	s.mu.Lock()
	_, known := s.byEmail[email]
	s.mu.Unlock()

	// Unknown emails get the same answer so accounts cannot be enumerated.
	if known {
		code, err := internal.NewOTP(6)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not issue reset code")
			return
		}
		s.mu.Lock()
		s.resets[email] = resetCode{code: code, expiresAt: s.cfg.Now().Add(s.cfg.ResetCodeTTL)}
		s.mu.Unlock()
		if s.cfg.OnResetCode != nil {
			s.cfg.OnResetCode(email, code)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "If the email is registered, a reset code has been sent."})
}

type resetRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeDetail(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if violations := s.cfg.Policy.Check(req.NewPassword); len(violations) > 0 {
		writeFieldErrors(w, "new_password", violations)
		return
	}
	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not reset password")
		return
	}

	email := normalize(req.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.resets[email]
	if !ok || rc.code != strings.TrimSpace(req.OTP) || !s.cfg.Now().Before(rc.expiresAt) {
		writeDetail(w, http.StatusBadRequest, detailBadResetCode)
		return
	}
	acc := s.accounts[s.byEmail[email]]
	if acc == nil {
		writeDetail(w, http.StatusBadRequest, detailBadResetCode)
		return
	}
	acc.hash = hash
	delete(s.resets, email)
	s.revokeLocked(acc.id)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully."})
}

type transaction struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Merchant  string    `json:"merchant"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	now := s.cfg.Now().UTC().Truncate(time.Second)
	writeJSON(w, http.StatusOK, []transaction{
		{ID: "txn-1001", Amount: 42.50, Merchant: "Corner Market", Status: "approved", CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "txn-1002", Amount: 1899.99, Merchant: "Electronics Hub", Status: "flagged", CreatedAt: now.Add(-time.Hour)},
	})
}

type userProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	TwoFactor bool      `json:"is_2fa_enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func profile(acc *account) userProfile {
	return userProfile{
		ID:        acc.id,
		Email:     acc.email,
		Username:  acc.username,
		FullName:  acc.fullName,
		Role:      acc.role,
		IsActive:  true,
		TwoFactor: acc.otpSecret != "",
		CreatedAt: acc.createdAt,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst); err != nil {
		writeFieldErrors(w, "", []string{"Invalid JSON body"})
		return false
	}
	return true
}

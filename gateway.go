package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// twoFactorSentinel is the detail the login endpoint sends with 403 when an OTP is needed.
const twoFactorSentinel = "2FA Required"

// LoginRequest is the body of the login exchange.
type LoginRequest struct {
	Identifier string
	Password   string
	OTPCode    string
}

// RegisterRequest is the body of the registration exchange.
type RegisterRequest struct {
	Email    string
	Username string
	FullName string
	Password string
}

// ResetPasswordRequest is the body of the reset exchange.
type ResetPasswordRequest struct {
	Email           string
	OTP             string
	NewPassword     string
	ConfirmPassword string
}

// Gateway talks to the remote authentication service. Every returned error is an [*Error].
type Gateway interface {
	Login(ctx context.Context, req LoginRequest) (token string, err error)
	Register(ctx context.Context, req RegisterRequest) error
	CurrentUser(ctx context.Context, token string) (User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
}

// HTTPGateway implements [Gateway] over the JSON HTTP contract of the authentication service.
type HTTPGateway struct {
	cfg    GatewayConfig
	client *http.Client
}

// NewHTTPGateway creates an [HTTPGateway]. A nil client uses a client with cfg.RequestTimeout.
func NewHTTPGateway(cfg GatewayConfig, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{cfg: cfg, client: client}
}

type loginBody struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	OTPCode         string `json:"otp_code,omitempty"`
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type registerBody struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type forgotBody struct {
	Email string `json:"email"`
}

type resetBody struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Login implements [Gateway].
func (g *HTTPGateway) Login(ctx context.Context, req LoginRequest) (string, error) {
	body := loginBody{UsernameOrEmail: req.Identifier, Password: req.Password, OTPCode: req.OTPCode}

	status, raw, err := g.do(WithCredentialExchange(ctx), http.MethodPost, g.cfg.LoginPath, "", body)
	if err != nil {
		return "", err
	}

	if status == http.StatusOK {
		var tok tokenBody
		if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
			return "", newError(KindService, status, "Login failed. Please try again.", err)
		}
		return tok.AccessToken, nil
	}

	detail := decodeDetail(raw)
	switch {
	case status == http.StatusForbidden && detail == twoFactorSentinel:
		return "", newError(KindTwoFactorRequired, status, "Two-factor code required.", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", newError(KindCredential, status, orDefault(detail, "Invalid credentials"), nil)
	}
	return "", classify(status, detail, "Login failed. Please try again.")
}

// Register implements [Gateway].
func (g *HTTPGateway) Register(ctx context.Context, req RegisterRequest) error {
	body := registerBody{Email: req.Email, Username: req.Username, FullName: req.FullName, Password: req.Password}

	status, raw, err := g.do(WithCredentialExchange(ctx), http.MethodPost, g.cfg.RegisterPath, "", body)
	if err != nil {
		return err
	}
	if status == http.StatusCreated || status == http.StatusOK {
		return nil
	}
	return classify(status, decodeDetail(raw), "Registration failed. Please try again.")
}

// CurrentUser implements [Gateway]. A 401 answer is reported as KindAuthorizationExpired.
func (g *HTTPGateway) CurrentUser(ctx context.Context, token string) (User, error) {
	status, raw, err := g.do(ctx, http.MethodGet, g.cfg.CurrentUserPath, token, nil)
	if err != nil {
		return User{}, err
	}

	if status == http.StatusOK {
		var u userBody
		if err := json.Unmarshal(raw, &u); err != nil {
			return User{}, newError(KindService, status, "Could not read the user profile.", err)
		}
		return u.user(), nil
	}
	detail := decodeDetail(raw)
	if status == http.StatusUnauthorized {
		return User{}, newError(KindAuthorizationExpired, status, orDefault(detail, "Session expired. Please sign in again."), nil)
	}
	return User{}, classify(status, detail, "Could not load the user profile.")
}

// ForgotPassword implements [Gateway].
func (g *HTTPGateway) ForgotPassword(ctx context.Context, email string) error {
	status, raw, err := g.do(WithCredentialExchange(ctx), http.MethodPost, g.cfg.ForgotPasswordPath, "", forgotBody{Email: email})
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	return classify(status, decodeDetail(raw), "Could not send the reset code.")
}

// ResetPassword implements [Gateway].
func (g *HTTPGateway) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	body := resetBody{Email: req.Email, OTP: req.OTP, NewPassword: req.NewPassword, ConfirmPassword: req.ConfirmPassword}

	status, raw, err := g.do(WithCredentialExchange(ctx), http.MethodPost, g.cfg.ResetPasswordPath, "", body)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	detail := decodeDetail(raw)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return newError(KindCredential, status, orDefault(detail, "Invalid or expired code."), nil)
	}
	return classify(status, detail, "Could not reset the password.")
}

func (g *HTTPGateway) do(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, newError(KindValidation, 0, "Invalid request.", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, newError(KindNetwork, 0, "Network error. Please check your connection.", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, newError(KindNetwork, 0, "Network error. Please check your connection.", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, newError(KindNetwork, resp.StatusCode, "Network error. Please check your connection.", err)
	}
	return resp.StatusCode, raw, nil
}

type userBody struct {
	ID       json.RawMessage `json:"id"`
	Email    string          `json:"email"`
	Username string          `json:"username"`
	FullName string          `json:"full_name"`
	Role     string          `json:"role"`
}

// user accepts numeric or string ids.
func (b userBody) user() User {
	id := strings.Trim(string(b.ID), `"`)
	if id == "null" {
		id = ""
	}
	return User{ID: id, Email: b.Email, Username: b.Username, FullName: b.FullName, Role: b.Role}
}

// decodeDetail extracts a display message from {"detail": "..."} or
// {"detail": [{"msg": "..."}, ...]}; list messages are joined with "; ".
func decodeDetail(raw []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// classify maps the remaining statuses: 4xx request errors are validation failures,
// everything else is a service failure.
func classify(status int, detail, fallback string) *Error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		return newError(KindValidation, status, orDefault(detail, fallback), nil)
	case status == http.StatusUnauthorized:
		return newError(KindCredential, status, orDefault(detail, fallback), nil)
	case status >= 400 && status < 500:
		return newError(KindValidation, status, orDefault(detail, fallback), nil)
	default:
		return newError(KindService, status, orDefault(detail, fallback), fmt.Errorf("unexpected status %d", status))
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

var _ Gateway = (*HTTPGateway)(nil)

// requestTimeout applies the configured per-request deadline when ctx has none.
func requestTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

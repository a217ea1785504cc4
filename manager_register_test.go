package goSession

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/goSession/authtest"
)

func newRegisterInput() RegisterInput {
	return RegisterInput{
		Email:    "grace@example.com",
		Username: "grace",
		FullName: "Grace Hopper",
		Password: "Compiler-Pioneer-1952!",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)

	res, err := m.RegisterAndLogin(context.Background(), newRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.Created || res.AutoLogin != AutoLoginSucceeded || res.Login == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Login.User == nil || res.Login.User.Email != "grace@example.com" {
		t.Fatalf("expected the new user, got %+v", res.Login.User)
	}
	if !m.IsActive(context.Background()) {
		t.Fatalf("expected an active session")
	}
}

func TestRegisterDoesNotCreateSession(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)

	res, err := m.Register(context.Background(), newRegisterInput())
	if err != nil || !res.Created || res.AutoLogin != AutoLoginSkipped {
		t.Fatalf("unexpected register result %+v %v", res, err)
	}
	if m.IsActive(context.Background()) {
		t.Fatalf("register alone must not sign in")
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)

	in := newRegisterInput()
	in.FullName = " "
	if _, err := m.Register(context.Background(), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	in = newRegisterInput()
	in.Email = "not-an-email"
	if _, err := m.Register(context.Background(), in); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for the email, got %v", err)
	}
	if got := h.auth.Requests(authtest.PathRegister); got != 0 {
		t.Fatalf("local validation must not reach the service, got %d requests", got)
	}

	in = newRegisterInput()
	in.Password = "weakpassword"
	_, err := m.Register(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected server-side validation error, got %v", err)
	}
	if msg := Message(err); !strings.Contains(msg, "uppercase") || !strings.Contains(msg, "; ") {
		t.Fatalf("expected joined policy messages, got %q", msg)
	}

	if _, err := m.Register(context.Background(), RegisterInput{
		Email: testEmail, Username: "someone", FullName: "Someone", Password: "Another-Strong-Pass-1!",
	}); Message(err) != "Email already registered" {
		t.Fatalf("expected duplicate email message, got %v", err)
	}
}

func TestRegisterAutoLoginFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)
	h.auth.FailNext(authtest.PathLogin, 500)

	res, err := m.RegisterAndLogin(context.Background(), newRegisterInput())
	if err != nil {
		t.Fatalf("registration succeeded, error must be nil: %v", err)
	}
	if !res.Created || res.AutoLogin != AutoLoginFailed || res.LoginErr == nil {
		t.Fatalf("expected auto-login failure, got %+v", res)
	}
	if !errors.Is(res.LoginErr, ErrService) {
		t.Fatalf("expected a service error, got %v", res.LoginErr)
	}
	if m.IsActive(context.Background()) {
		t.Fatalf("failed auto-login must leave no session")
	}
	if m.MetricsSnapshot().Counters[MetricAutoLoginFailure] != 1 {
		t.Fatalf("expected auto-login failure metric")
	}
}

func TestResetPasswordMismatchSkipsNetwork(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)

	err := m.ResetPassword(context.Background(), ResetPasswordInput{
		Email: testEmail, OTP: "123456", NewPassword: "New-Password-123!", ConfirmPassword: "New-Password-124!",
	})
	if !errors.Is(err, ErrPasswordMismatch) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected mismatch validation error, got %v", err)
	}
	if Message(err) != "Passwords do not match" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if got := h.auth.Requests(authtest.PathResetPassword); got != 0 {
		t.Fatalf("mismatch must not reach the service, got %d", got)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	m := h.client(nil, nil)
	ctx := context.Background()

	if err := m.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code, ok := h.auth.ResetCode(testEmail)
	if !ok {
		t.Fatalf("expected an issued code")
	}

	const newPassword = "Difference-Engine-1822!"
	err := m.ResetPassword(ctx, ResetPasswordInput{Email: testEmail, OTP: "nope", NewPassword: newPassword, ConfirmPassword: newPassword})
	if !errors.Is(err, ErrValidation) || Message(err) != "Invalid or expired OTP" {
		t.Fatalf("expected invalid code error, got %v", err)
	}

	if err := m.ResetPassword(ctx, ResetPasswordInput{Email: testEmail, OTP: code, NewPassword: newPassword, ConfirmPassword: newPassword}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := m.Login(ctx, testUsername, newPassword, ""); err != nil {
		t.Fatalf("login with the new password: %v", err)
	}

	snap := m.MetricsSnapshot()
	if snap.Counters[MetricPasswordResetRequest] != 1 || snap.Counters[MetricPasswordResetSuccess] != 1 || snap.Counters[MetricPasswordResetFailure] != 1 {
		t.Fatalf("unexpected reset counters %+v", snap.Counters)
	}
}

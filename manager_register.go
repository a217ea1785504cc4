package goSession

import (
	"context"
	"net/mail"
	"strings"
)

// Register creates an account. It never creates a session.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if m.isClosed() {
		return RegisterResult{}, ErrManagerClosed
	}

	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateRegister(in); err != nil {
		m.metrics.Inc(MetricRegisterFailure)
		return RegisterResult{}, err
	}

	gctx, cancel := requestTimeout(ctx, m.cfg.Gateway.RequestTimeout)
	defer cancel()

	err := m.gateway.Register(gctx, RegisterRequest{
		Email:    in.Email,
		Username: in.Username,
		FullName: in.FullName,
		Password: in.Password,
	})
	if err != nil {
		m.metrics.Inc(MetricRegisterFailure)
		m.emitAudit(ctx, AuditRegister, false, "", nil, err, map[string]string{"email": in.Email})
		return RegisterResult{}, err
	}

	m.metrics.Inc(MetricRegisterSuccess)
	m.emitAudit(ctx, AuditRegister, true, "", nil, nil, map[string]string{"email": in.Email})
	return RegisterResult{Created: true, AutoLogin: AutoLoginSkipped}, nil
}

// RegisterAndLogin registers and then signs in with the new email and password.
//
// A failed sign-in after a successful registration is not an error: the result reports
// AutoLoginFailed with LoginErr set, so the caller can send the user to the sign-in form.
func (m *Manager) RegisterAndLogin(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	res, err := m.Register(ctx, in)
	if err != nil {
		return res, err
	}

	login, err := m.Login(ctx, in.Email, in.Password, "")
	switch {
	case err != nil:
		m.metrics.Inc(MetricAutoLoginFailure)
		m.logger.Warn("goSession: auto-login after registration failed", "error", err)
		res.AutoLogin = AutoLoginFailed
		res.LoginErr = err
	case login.Outcome == LoginTwoFactorRequired:
		res.AutoLogin = AutoLoginTwoFactorRequired
	default:
		res.AutoLogin = AutoLoginSucceeded
		res.Login = &login
	}
	return res, nil
}

func validateRegister(in RegisterInput) error {
	var missing []string
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if in.FullName == "" {
		missing = append(missing, "full name")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return newError(KindValidation, 0, "Required: "+strings.Join(missing, ", ")+".", nil)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return newError(KindValidation, 0, "Enter a valid email address.", err)
	}
	return nil
}

// RequestPasswordReset asks the service to send a one-time code to email. nil means sent.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return newError(KindValidation, 0, "Email is required.", nil)
	}

	gctx, cancel := requestTimeout(ctx, m.cfg.Gateway.RequestTimeout)
	defer cancel()

	if err := m.gateway.ForgotPassword(gctx, email); err != nil {
		m.emitAudit(ctx, AuditPasswordReset, false, "", nil, err, map[string]string{"step": "request", "email": email})
		return err
	}
	m.metrics.Inc(MetricPasswordResetRequest)
	m.emitAudit(ctx, AuditPasswordReset, true, "", nil, nil, map[string]string{"step": "request", "email": email})
	return nil
}

// ResetPassword sets a new password with the emailed code. nil means reset.
// Mismatched passwords are rejected locally without contacting the service.
func (m *Manager) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	in.Email = strings.TrimSpace(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if in.Email == "" || in.OTP == "" || in.NewPassword == "" {
		m.metrics.Inc(MetricPasswordResetFailure)
		return newError(KindValidation, 0, "Email, code and new password are required.", nil)
	}
	if in.NewPassword != in.ConfirmPassword {
		m.metrics.Inc(MetricPasswordResetFailure)
		return newError(KindValidation, 0, "Passwords do not match", ErrPasswordMismatch)
	}

	gctx, cancel := requestTimeout(ctx, m.cfg.Gateway.RequestTimeout)
	defer cancel()

	err := m.gateway.ResetPassword(gctx, ResetPasswordRequest{
		Email:           in.Email,
		OTP:             in.OTP,
		NewPassword:     in.NewPassword,
		ConfirmPassword: in.ConfirmPassword,
	})
	if err != nil {
		m.metrics.Inc(MetricPasswordResetFailure)
		m.emitAudit(ctx, AuditPasswordReset, false, "", nil, err, map[string]string{"step": "confirm", "email": in.Email})
		return err
	}
	m.metrics.Inc(MetricPasswordResetSuccess)
	m.emitAudit(ctx, AuditPasswordReset, true, "", nil, nil, map[string]string{"step": "confirm", "email": in.Email})
	return nil
}

package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef maps a counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef maps a histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that established a session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Logins rejected locally or by the service."},
	{ID: goSession.MetricLoginTwoFactorRequired, Name: "gosession_login_two_factor_required_total", Help: "Logins answered with a second-factor prompt."},
	{ID: goSession.MetricLoginNetworkError, Name: "gosession_login_network_error_total", Help: "Logins that failed in transport."},
	{ID: goSession.MetricLoginSuperseded, Name: "gosession_login_superseded_total", Help: "Login responses discarded for a newer attempt."},
	{ID: goSession.MetricRegisterSuccess, Name: "gosession_register_success_total", Help: "Accounts created."},
	{ID: goSession.MetricRegisterFailure, Name: "gosession_register_failure_total", Help: "Registrations rejected."},
	{ID: goSession.MetricAutoLoginFailure, Name: "gosession_auto_login_failure_total", Help: "Registrations whose follow-up login failed."},
	{ID: goSession.MetricPasswordResetRequest, Name: "gosession_password_reset_request_total", Help: "Reset codes requested."},
	{ID: goSession.MetricPasswordResetSuccess, Name: "gosession_password_reset_success_total", Help: "Passwords reset."},
	{ID: goSession.MetricPasswordResetFailure, Name: "gosession_password_reset_failure_total", Help: "Password resets rejected."},
	{ID: goSession.MetricSessionEstablished, Name: "gosession_session_established_total", Help: "Sessions written by login."},
	{ID: goSession.MetricSessionAdopted, Name: "gosession_session_adopted_total", Help: "Sessions adopted from another client."},
	{ID: goSession.MetricSessionTouched, Name: "gosession_session_touched_total", Help: "Activity extensions written to the store."},
	{ID: goSession.MetricActivityThrottled, Name: "gosession_activity_throttled_total", Help: "Activity signals absorbed by the debounce."},
	{ID: goSession.MetricWarningShown, Name: "gosession_warning_shown_total", Help: "Transitions into the warning state."},
	{ID: goSession.MetricSessionContinued, Name: "gosession_session_continued_total", Help: "Explicit continue-session commands."},
	{ID: goSession.MetricLogoutUser, Name: "gosession_logout_user_total", Help: "User-initiated logouts."},
	{ID: goSession.MetricLogoutTimeout, Name: "gosession_logout_timeout_total", Help: "Sessions ended by inactivity."},
	{ID: goSession.MetricLogoutUnauthorized, Name: "gosession_logout_unauthorized_total", Help: "Sessions ended by an authentication-denied answer."},
	{ID: goSession.MetricLogoutExternal, Name: "gosession_logout_external_total", Help: "Sessions ended by another client."},
	{ID: goSession.MetricLogoutDuplicate, Name: "gosession_logout_duplicate_total", Help: "Logout calls absorbed by an earlier logout."},
	{ID: goSession.MetricUnauthorizedResponse, Name: "gosession_unauthorized_response_total", Help: "401 answers seen by the interceptor."},
	{ID: goSession.MetricStoreFailure, Name: "gosession_store_failure_total", Help: "Session backend errors."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricCheckLatency, Name: "gosession_check_latency_seconds", Help: "Latency of one timeout-monitor evaluation."},
}

// HistogramBounds are the upper bounds of the check-latency buckets, in seconds.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array; missing buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}

// Series that do not come from the metrics snapshot.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher queue was full."
	StateName        = "gosession_session_state"
	StateHelp        = "1 for the state the client is in, 0 for the others."
	ClientLabel      = "client"
	StateLabel       = "state"
)

// States lists every exported session state in a stable order.
var States = []goSession.State{
	goSession.StateSignedOut,
	goSession.StateActive,
	goSession.StateWarning,
	goSession.StateExpired,
}

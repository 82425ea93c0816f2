package internaldefs

import (
	"strconv"

	"github.com/pipelinedash/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins rejected by the login throttle."},
	{ID: authcore.MetricLoginInactive, Name: "authcore_login_inactive_total", Help: "Logins rejected because the account is not active."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Replayed refresh tokens."},
	{ID: authcore.MetricAutoRefresh, Name: "authcore_auto_refresh_total", Help: "Expired access tokens refreshed during authentication."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created sessions."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Successful access-token authentications."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Failed access-token authentications."},
	{ID: authcore.MetricAuthorizationDenied, Name: "authcore_authorization_denied_total", Help: "Role or permission checks that denied access."},
	{ID: authcore.MetricSessionsSwept, Name: "authcore_sessions_swept_total", Help: "Expired sessions removed by the sweeper."},
	{ID: authcore.MetricUserCreated, Name: "authcore_user_created_total", Help: "Created users."},
	{ID: authcore.MetricUserUpdated, Name: "authcore_user_updated_total", Help: "Updated users."},
	{ID: authcore.MetricUserDeleted, Name: "authcore_user_deleted_total", Help: "Deleted users."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password digests re-hashed on login."},
}

// GroupMember maps one engine counter to an attribute value of its group.
type GroupMember struct {
	ID    authcore.MetricID
	Value string
}

// GroupDef folds related engine counters into a single instrument whose
// points are told apart by the Key attribute.
type GroupDef struct {
	Name    string
	Help    string
	Unit    string
	Key     string
	Members []GroupMember
}

// GroupDefs covers every entry of CounterDefs exactly once.
var GroupDefs = []GroupDef{
	{
		Name: "authcore.logins", Help: "Login attempts by outcome.", Unit: "{attempt}", Key: "outcome",
		Members: []GroupMember{
			{authcore.MetricLoginSuccess, "success"},
			{authcore.MetricLoginFailure, "failure"},
			{authcore.MetricLoginRateLimited, "rate_limited"},
			{authcore.MetricLoginInactive, "inactive"},
		},
	},
	{
		Name: "authcore.refreshes", Help: "Refresh attempts by outcome.", Unit: "{attempt}", Key: "outcome",
		Members: []GroupMember{
			{authcore.MetricRefreshSuccess, "success"},
			{authcore.MetricRefreshFailure, "failure"},
			{authcore.MetricRefreshReuseDetected, "reuse_detected"},
			{authcore.MetricAutoRefresh, "auto"},
		},
	},
	{
		Name: "authcore.sessions", Help: "Session lifecycle events.", Unit: "{session}", Key: "event",
		Members: []GroupMember{
			{authcore.MetricSessionCreated, "created"},
			{authcore.MetricSessionEvicted, "evicted"},
			{authcore.MetricSessionInvalidated, "invalidated"},
			{authcore.MetricSessionsSwept, "swept"},
			{authcore.MetricLogout, "logout"},
		},
	},
	{
		Name: "authcore.requests", Help: "Authenticated request checks by outcome.", Unit: "{request}", Key: "outcome",
		Members: []GroupMember{
			{authcore.MetricAuthenticateSuccess, "authenticated"},
			{authcore.MetricAuthenticateFailure, "rejected"},
			{authcore.MetricAuthorizationDenied, "forbidden"},
		},
	},
	{
		Name: "authcore.users", Help: "User administration events.", Unit: "{user}", Key: "action",
		Members: []GroupMember{
			{authcore.MetricUserCreated, "created"},
			{authcore.MetricUserUpdated, "updated"},
			{authcore.MetricUserDeleted, "deleted"},
			{authcore.MetricPasswordUpgraded, "password_upgraded"},
		},
	},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// AuditDroppedName is the counter of audit events dropped on overflow.
const AuditDroppedName = "authcore_audit_dropped_total"

// HistogramBounds are the upper bounds, in seconds, of the finite buckets.
// The engine keeps one more bucket for everything above the last bound.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels returns the le label of every bucket, +Inf included.
func BucketLabels() []string {
	out := make([]string, 0, len(HistogramBounds)+1)
	for _, b := range HistogramBounds {
		out = append(out, strconv.FormatFloat(b, 'f', -1, 64))
	}
	return append(out, "+Inf")
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

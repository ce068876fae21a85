package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics records login and token-verification outcomes.
type AuthMetrics struct {
	loginAttempts  *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	sessionsReaped prometheus.Counter
}

// NewAuthMetrics registers the auth metrics on the provided registerer.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		return &AuthMetrics{}
	}
	loginAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Login attempts by method and outcome.",
	}, []string{"method", "outcome"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_verifications_total",
		Help: "Token verification results.",
	}, []string{"outcome"})
	sessionsReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_reaped_total",
		Help: "Expired session rows deleted during verification.",
	})
	reg.MustRegister(loginAttempts, verifications, sessionsReaped)
	return &AuthMetrics{
		loginAttempts:  loginAttempts,
		verifications:  verifications,
		sessionsReaped: sessionsReaped,
	}
}

// IncLogin increments the login counter for the method and outcome.
func (m *AuthMetrics) IncLogin(method, outcome string) {
	if m == nil || m.loginAttempts == nil {
		return
	}
	m.loginAttempts.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// IncVerification increments the verification counter for the outcome.
func (m *AuthMetrics) IncVerification(outcome string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSessionReaped counts an expired session row deleted lazily.
func (m *AuthMetrics) IncSessionReaped() {
	if m == nil || m.sessionsReaped == nil {
		return
	}
	m.sessionsReaped.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

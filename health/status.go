// Package health provides health monitoring functionality for components and systems.
package health

import (
	"regexp"
	"strings"
	"time"
)

var (
	httpURLRegex    = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex    = regexp.MustCompile(`nats://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or system.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics.
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int           `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == "healthy" }
func (s Status) IsDegraded() bool  { return s.Status == "degraded" }
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy.
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// SanitizeMessage strips broker URLs, filesystem paths, IPs, ports, and
// credential-shaped substrings out of a status message before it is exposed
// on the admin endpoint. The pipeline's transport health entries carry the
// raw NATS dial error, which routinely embeds the broker URL and any
// SASL-equivalent credential baked into it.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := httpURLRegex.ReplaceAllString(msg, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "key") || strings.Contains(lower, "secret") ||
		strings.Contains(lower, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}

// NewHealthy creates a new healthy status.
func NewHealthy(component, message string) Status {
	return Status{Component: component, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates a new unhealthy status.
func NewUnhealthy(component, message string) Status {
	return Status{Component: component, Healthy: false, Status: "unhealthy", Message: SanitizeMessage(message), Timestamp: time.Now()}
}

// NewDegraded creates a new degraded status.
func NewDegraded(component, message string) Status {
	return Status{Component: component, Healthy: false, Status: "degraded", Message: SanitizeMessage(message), Timestamp: time.Now()}
}

// Aggregate creates a status by aggregating sub-statuses:
// any unhealthy sub-status makes the aggregate unhealthy, else any degraded
// sub-status makes it degraded, else it is healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no sub-components to aggregate")
	}

	hasUnhealthy, hasDegraded := false, false
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			hasUnhealthy = true
		} else if sub.IsDegraded() {
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more sub-components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more sub-components are degraded")
	default:
		status = NewHealthy(component, "all sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}

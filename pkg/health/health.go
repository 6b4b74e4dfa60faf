// Package health derives the service's readiness from the state of the
// token store and the background refresher. It performs no probing of
// its own; both inputs are written elsewhere and merely read here.
package health

import (
	"time"

	"github.com/aksver/aksver/pkg/token"
)

// Worker is the view of the background refresher the reporter needs.
type Worker interface {
	// HeartbeatAge returns the time since the worker last ticked.
	HeartbeatAge() time.Duration

	// NextRefreshAt returns the scheduled renewal time of the current
	// token, if one exists.
	NextRefreshAt() (time.Time, bool)
}

// TokenSource is the view of the token store the reporter needs.
type TokenSource interface {
	Valid() bool
	Peek() (token.Token, bool)
}

// Checks are the individual readiness conditions. Both must hold for
// the service to report ready.
type Checks struct {
	TokenValid  bool `json:"token_valid"`
	WorkerAlive bool `json:"worker_alive"`
}

// Report is the status document served by the health endpoint.
type Report struct {
	Status              string     `json:"status"` // "ok" or "unavailable"
	Checks              Checks     `json:"checks"`
	UptimeSeconds       float64    `json:"uptime_seconds"`
	HeartbeatAgeSeconds float64    `json:"heartbeat_age_seconds"`
	TokenExpiresAt      *time.Time `json:"token_expires_at,omitempty"`
	NextTokenRefreshAt  *time.Time `json:"next_token_refresh_at,omitempty"`
}

// Ready reports whether both checks passed.
func (r Report) Ready() bool {
	return r.Checks.TokenValid && r.Checks.WorkerAlive
}

// Reporter builds Reports from the live token store and worker.
type Reporter struct {
	tokens     TokenSource
	worker     Worker
	staleAfter time.Duration
	started    time.Time
}

// NewReporter creates a reporter. refreshInterval is the worker's tick
// interval; a heartbeat older than 2.5 intervals marks the worker dead.
// The margin tolerates one missed tick plus scheduling slack, while a
// worker stuck in a restart loop (or wedged) overshoots it quickly.
func NewReporter(tokens TokenSource, worker Worker, refreshInterval time.Duration) *Reporter {
	return &Reporter{
		tokens:     tokens,
		worker:     worker,
		staleAfter: refreshInterval * 5 / 2,
		started:    time.Now(),
	}
}

// Report takes a point-in-time snapshot of the service's health.
func (r *Reporter) Report() Report {
	age := r.worker.HeartbeatAge()

	rep := Report{
		Checks: Checks{
			TokenValid:  r.tokens.Valid(),
			WorkerAlive: age < r.staleAfter,
		},
		UptimeSeconds:       time.Since(r.started).Seconds(),
		HeartbeatAgeSeconds: age.Seconds(),
	}

	if tok, ok := r.tokens.Peek(); ok {
		expires := tok.ExpiresAt
		rep.TokenExpiresAt = &expires
	}
	if next, ok := r.worker.NextRefreshAt(); ok {
		rep.NextTokenRefreshAt = &next
	}

	if rep.Ready() {
		rep.Status = "ok"
	} else {
		rep.Status = "unavailable"
	}
	return rep
}

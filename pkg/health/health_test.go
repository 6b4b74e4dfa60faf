package health

import (
	"testing"
	"time"

	"github.com/aksver/aksver/pkg/token"
)

// stubWorker reports a fixed heartbeat age and refresh schedule.
type stubWorker struct {
	age     time.Duration
	next    time.Time
	hasNext bool
}

func (s stubWorker) HeartbeatAge() time.Duration { return s.age }
func (s stubWorker) NextRefreshAt() (time.Time, bool) { return s.next, s.hasNext }

func validStore(t *testing.T) *token.Store {
	t.Helper()
	store := token.NewStore(65 * time.Second)
	store.Write(token.Token{Secret: "tok", ExpiresAt: time.Now().Add(time.Hour)})
	return store
}

func TestReport_ReadyMatrix(t *testing.T) {
	const interval = 55 * time.Second

	expired := token.NewStore(65 * time.Second)
	expired.Write(token.Token{Secret: "tok", ExpiresAt: time.Now().Add(10 * time.Second)})

	tests := []struct {
		name       string
		tokens     TokenSource
		age        time.Duration
		wantReady  bool
		wantToken  bool
		wantWorker bool
	}{
		{
			name:       "healthy",
			tokens:     validStore(t),
			age:        5 * time.Second,
			wantReady:  true,
			wantToken:  true,
			wantWorker: true,
		},
		{
			name:       "empty token store",
			tokens:     token.NewStore(65 * time.Second),
			age:        5 * time.Second,
			wantReady:  false,
			wantToken:  false,
			wantWorker: true,
		},
		{
			name:       "token inside leeway window",
			tokens:     expired,
			age:        5 * time.Second,
			wantReady:  false,
			wantToken:  false,
			wantWorker: true,
		},
		{
			name:       "stalled worker",
			tokens:     validStore(t),
			age:        3 * interval,
			wantReady:  false,
			wantToken:  true,
			wantWorker: false,
		},
		{
			name:       "heartbeat just under the staleness bound",
			tokens:     validStore(t),
			age:        interval*5/2 - time.Second,
			wantReady:  true,
			wantToken:  true,
			wantWorker: true,
		},
		{
			name:       "heartbeat at the staleness bound",
			tokens:     validStore(t),
			age:        interval * 5 / 2,
			wantReady:  false,
			wantToken:  true,
			wantWorker: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := NewReporter(tt.tokens, stubWorker{age: tt.age}, interval)
			rep := reporter.Report()

			if rep.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", rep.Ready(), tt.wantReady)
			}
			if rep.Checks.TokenValid != tt.wantToken {
				t.Errorf("TokenValid = %v, want %v", rep.Checks.TokenValid, tt.wantToken)
			}
			if rep.Checks.WorkerAlive != tt.wantWorker {
				t.Errorf("WorkerAlive = %v, want %v", rep.Checks.WorkerAlive, tt.wantWorker)
			}

			wantStatus := "unavailable"
			if tt.wantReady {
				wantStatus = "ok"
			}
			if rep.Status != wantStatus {
				t.Errorf("Status = %q, want %q", rep.Status, wantStatus)
			}
		})
	}
}

func TestReport_Fields(t *testing.T) {
	store := token.NewStore(65 * time.Second)
	expiry := time.Now().Add(30 * time.Minute)
	store.Write(token.Token{Secret: "tok", ExpiresAt: expiry})

	next := expiry.Add(-130 * time.Second)
	reporter := NewReporter(store, stubWorker{age: 2 * time.Second, next: next, hasNext: true}, 55*time.Second)

	rep := reporter.Report()

	if rep.TokenExpiresAt == nil || !rep.TokenExpiresAt.Equal(expiry) {
		t.Errorf("TokenExpiresAt = %v, want %v", rep.TokenExpiresAt, expiry)
	}
	if rep.NextTokenRefreshAt == nil || !rep.NextTokenRefreshAt.Equal(next) {
		t.Errorf("NextTokenRefreshAt = %v, want %v", rep.NextTokenRefreshAt, next)
	}
	if rep.HeartbeatAgeSeconds != 2 {
		t.Errorf("HeartbeatAgeSeconds = %v, want 2", rep.HeartbeatAgeSeconds)
	}
	if rep.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %v, want >= 0", rep.UptimeSeconds)
	}
}

func TestReport_EmptyStoreOmitsTimestamps(t *testing.T) {
	reporter := NewReporter(token.NewStore(65*time.Second), stubWorker{age: time.Second}, 55*time.Second)

	rep := reporter.Report()
	if rep.TokenExpiresAt != nil {
		t.Errorf("TokenExpiresAt = %v, want nil for empty store", rep.TokenExpiresAt)
	}
	if rep.NextTokenRefreshAt != nil {
		t.Errorf("NextTokenRefreshAt = %v, want nil for empty store", rep.NextTokenRefreshAt)
	}
}

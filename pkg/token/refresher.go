package token

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// escalateAfter is the number of consecutive abnormal worker exits after
// which restarts are logged with an escalated message. The supervisor
// keeps restarting regardless; a long streak means the hiccup is not
// transient and an operator should look.
const escalateAfter = 5

// healthyRunTicks is the number of tick intervals a worker must survive
// for its death to count as a fresh incident rather than a continuation
// of a crash loop.
const healthyRunTicks = 3

// RefresherConfig holds the timing knobs of the background refresher.
//
// The values must satisfy Trigger > Leeway + Interval (enforced by
// config.Validate): a token found not-yet-due at one wake-up then still
// exceeds the leeway, and is therefore usable for HTTP calls, at the
// next wake-up. No request-path read observes an expired token under
// normal scheduling.
type RefresherConfig struct {
	// Interval is how often the worker wakes up to check the token.
	Interval time.Duration

	// Trigger is the remaining-lifetime threshold below which the
	// worker renews the token.
	Trigger time.Duration

	// RestartDelay is the pause before the supervisor respawns a dead
	// worker. Fixed, no backoff growth: a respawn is cheap and the
	// expected failure mode is a transient infrastructure hiccup.
	RestartDelay time.Duration
}

// Refresher proactively renews the token in the background and publishes
// a heartbeat so the health endpoint can detect a stalled worker.
type Refresher struct {
	store     *Store
	exchanger Exchanger
	cfg       RefresherConfig
	logger    zerolog.Logger

	// heartbeat is the unix timestamp of the worker's last tick,
	// written only by the worker, read by the health reporter.
	heartbeat atomic.Int64
}

// NewRefresher creates a refresher. The heartbeat starts at "now" so
// health checks are meaningful before the first tick.
func NewRefresher(store *Store, exchanger Exchanger, cfg RefresherConfig, logger zerolog.Logger) *Refresher {
	r := &Refresher{
		store:     store,
		exchanger: exchanger,
		cfg:       cfg,
		logger:    logger,
	}
	r.stampHeartbeat()
	return r
}

// Bootstrap performs a synchronous token exchange. Called once at
// startup, before the server accepts traffic, so the service is ready
// the moment it starts listening. A failure here is fatal.
func (r *Refresher) Bootstrap(ctx context.Context) error {
	return r.refresh(ctx)
}

// Start launches the supervised worker and returns immediately. The
// supervisor runs until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	go r.supervise(ctx)
}

// HeartbeatAge returns the time since the worker last ticked.
func (r *Refresher) HeartbeatAge() time.Duration {
	last := time.Unix(r.heartbeat.Load(), 0)
	return time.Since(last)
}

// NextRefreshAt returns the time the worker is scheduled to renew the
// current token, if one exists.
func (r *Refresher) NextRefreshAt() (time.Time, bool) {
	tok, ok := r.store.Peek()
	if !ok {
		return time.Time{}, false
	}
	return tok.ExpiresAt.Add(-r.cfg.Trigger), true
}

// supervise respawns the worker whenever it exits for any reason other
// than context cancellation, including panics. Crash-only restart
// policy: fixed delay, indefinitely.
func (r *Refresher) supervise(ctx context.Context) {
	r.logger.Info().Msg("Supervisor started")

	consecutive := 0
	for {
		started := time.Now()
		err := r.runWorker(ctx)
		if ctx.Err() != nil {
			r.logger.Info().Msg("Supervisor stopped")
			return
		}

		// A worker that lived through several ticks broke the streak;
		// only immediate re-deaths escalate.
		if time.Since(started) >= healthyRunTicks*r.cfg.Interval {
			consecutive = 0
		}
		consecutive++
		workerRestartsTotal.Inc()

		evt := r.logger.Error()
		if consecutive >= escalateAfter {
			evt = r.logger.Error().Bool("persistent", true)
		}
		if err != nil {
			evt.Err(err).Int("consecutive_exits", consecutive).Msg("Worker died, restarting")
		} else {
			evt.Int("consecutive_exits", consecutive).Msg("Worker exited cleanly (unexpected), restarting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RestartDelay):
		}
	}
}

// runWorker is one life of the refresh worker. It converts panics into
// returned errors so the supervisor can treat a crash like any other
// exit. Returns nil only on clean (unexpected) termination.
func (r *Refresher) runWorker(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker panic: %v", rec)
		}
	}()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.cfg.Interval).Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		r.stampHeartbeat()

		if !r.due() {
			continue
		}

		r.logger.Info().Msg("Token nearing expiration, refreshing")
		if err := r.refresh(ctx); err != nil {
			// No immediate retry: the next tick comes soon enough and
			// the trigger margin absorbs one failed cycle.
			r.logger.Error().Err(err).Msg("Token refresh failed, will retry next tick")
		}
	}
}

// due reports whether the token's remaining life is below the trigger.
// An empty store is always due.
func (r *Refresher) due() bool {
	tok, ok := r.store.Peek()
	if !ok {
		return true
	}
	return tok.ExpiresAt.Before(time.Now().Add(r.cfg.Trigger))
}

func (r *Refresher) refresh(ctx context.Context) error {
	tok, err := r.exchanger.Exchange(ctx)
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("failure").Inc()
		return err
	}

	r.store.Write(tok)
	tokenRefreshesTotal.WithLabelValues("success").Inc()
	r.logger.Info().Time("expires_at", tok.ExpiresAt).Msg("Token refreshed")
	return nil
}

func (r *Refresher) stampHeartbeat() {
	now := time.Now().Unix()
	r.heartbeat.Store(now)
	workerHeartbeatTimestamp.Set(float64(now))
}

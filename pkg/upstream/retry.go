package upstream

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Backoff shape: 50ms base doubled per attempt, plus up to 30ms of
// jitter so simultaneous cache misses don't hammer upstream in lockstep.
const (
	retryBaseDelay = 50 * time.Millisecond
	retryJitterMax = 30 * time.Millisecond
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aks_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aks_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aks_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// TokenReader yields the current bearer secret, if a usable one exists.
// Satisfied by *token.Store.
type TokenReader interface {
	Read() (string, bool)
}

// FetchWithRetry wraps FetchVersions with bounded exponential backoff.
//
// The token store is re-read before every attempt, not once up front: a
// retry sequence can outlive a token rotation, and a stale secret would
// turn a transient failure into an auth failure. A missing token counts
// as a retryable failure of its own, bounded by the same budget.
func FetchWithRetry(ctx context.Context, c *Client, tokens TokenReader, location string, showPreview bool, maxAttempts int) ([]string, error) {
	backoff := retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		versions, err := fetchOnce(ctx, c, tokens, location, showPreview)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("location", location).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return versions, nil
		}

		lastErr = err

		// Bad input and contract mismatches cannot succeed by
		// repetition; fail fast instead of burning latency.
		if !Retryable(err) {
			return nil, err
		}

		if attempt >= maxAttempts {
			break
		}

		class := ClassOf(err)
		retriesTotal.WithLabelValues(string(class)).Inc()

		delay := backoff + time.Duration(rand.Int63n(int64(retryJitterMax)))
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

		log.Warn().
			Err(err).
			Str("location", location).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retryable upstream error, backing off")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		backoff *= 2
	}

	class := ClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	log.Warn().
		Str("location", location).
		Str("error_class", string(class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

func fetchOnce(ctx context.Context, c *Client, tokens TokenReader, location string, showPreview bool) ([]string, error) {
	secret, ok := tokens.Read()
	if !ok {
		return nil, &Error{Class: ClassCredential, Message: "no usable token in store"}
	}
	return c.FetchVersions(ctx, location, showPreview, secret)
}

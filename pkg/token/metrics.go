package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tokenRefreshesTotal counts credential exchanges by outcome.
	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aks_token_refreshes_total",
			Help: "Total number of token exchange attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// tokenExpiryTimestamp exposes the current token's expiry as a unix timestamp.
	tokenExpiryTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aks_token_expiry_timestamp_seconds",
			Help: "Unix timestamp at which the cached token expires",
		},
	)

	// workerRestartsTotal counts refresh worker respawns by the supervisor.
	workerRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aks_token_worker_restarts_total",
			Help: "Total number of times the token refresh worker was restarted",
		},
	)

	// workerHeartbeatTimestamp exposes the worker's last heartbeat.
	workerHeartbeatTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aks_token_worker_heartbeat_timestamp_seconds",
			Help: "Unix timestamp of the refresh worker's last heartbeat",
		},
	)
)

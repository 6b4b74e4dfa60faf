// Package upstream implements the client for the Azure management API:
// one authenticated HTTP call per fetch, typed error classification, and
// a bounded retry policy that re-reads the token store on every attempt.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public Azure management endpoint.
	DefaultBaseURL = "https://management.azure.com"

	apiVersion = "2020-11-01"

	// Only Kubernetes orchestrators are relevant; the endpoint also
	// lists legacy orchestrator types.
	orchestratorTypeKubernetes = "Kubernetes"

	// Error bodies are bounded before classification.
	maxErrorBodyBytes = 1 << 20
)

// Prometheus metrics for upstream operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aks_upstream_requests_total",
		Help: "Total upstream management API requests by status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aks_upstream_request_duration_seconds",
		Help:    "Upstream management API request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aks_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the upstream client configuration.
type Config struct {
	// BaseURL of the management API. Defaults to DefaultBaseURL.
	BaseURL string

	// SubscriptionID scopes every request (required).
	SubscriptionID string

	// Timeout is the hard per-request deadline. Without it a request to
	// a bad location can hang indefinitely.
	Timeout time.Duration
}

// Client issues versions requests against the Azure management API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	subscriptionID string
	logger         zerolog.Logger
}

// New creates an upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		subscriptionID: cfg.SubscriptionID,
		logger:         log.With().Str("component", "upstream").Logger(),
	}, nil
}

// Wire shapes of the orchestrators endpoint.
type orchestratorsResponse struct {
	Properties orchestratorProperties `json:"properties"`
}

type orchestratorProperties struct {
	Orchestrators []orchestratorItem `json:"orchestrators"`
}

type orchestratorItem struct {
	Type      string `json:"orchestratorType"`
	Version   string `json:"orchestratorVersion"`
	IsPreview bool   `json:"isPreview"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchVersions performs one authenticated request for the available
// Kubernetes versions in location and returns them sorted ascending by
// semantic version. Preview versions are filtered out unless showPreview
// is set. An unparseable version string fails the whole request: a
// partial list would silently hide versions from callers.
func (c *Client) FetchVersions(ctx context.Context, location string, showPreview bool, secret string) ([]string, error) {
	reqURL := fmt.Sprintf(
		"%s/subscriptions/%s/providers/Microsoft.ContainerService/locations/%s/orchestrators?api-version=%s",
		c.baseURL, url.PathEscape(c.subscriptionID), url.PathEscape(location), apiVersion,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Class: ClassUpstream, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		classified := classifyTransport(err)
		upstreamErrorsTotal.WithLabelValues(string(classified.Class)).Inc()
		upstreamRequestsTotal.WithLabelValues("transport_error").Inc()
		return nil, classified
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		classified := classifyStatus(resp.StatusCode, body, location)
		upstreamErrorsTotal.WithLabelValues(string(classified.Class)).Inc()

		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("location", location).
			Str("error_class", string(classified.Class)).
			Msg("Upstream request failed")
		return nil, classified
	}

	var payload orchestratorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ClassParse)).Inc()
		return nil, &Error{Class: ClassParse, Message: "decode orchestrators response", Err: err}
	}

	versions, err := extractVersions(payload, showPreview)
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ClassParse)).Inc()
		return nil, err
	}
	return versions, nil
}

// extractVersions filters, validates and sorts the orchestrator list.
func extractVersions(payload orchestratorsResponse, showPreview bool) ([]string, error) {
	parsed := make([]*semver.Version, 0, len(payload.Properties.Orchestrators))
	for _, item := range payload.Properties.Orchestrators {
		if item.Type != orchestratorTypeKubernetes {
			continue
		}
		if item.IsPreview && !showPreview {
			continue
		}

		v, err := semver.StrictNewVersion(item.Version)
		if err != nil {
			return nil, &Error{
				Class:   ClassParse,
				Message: fmt.Sprintf("version %q is not a valid semantic version", item.Version),
				Err:     err,
			}
		}
		parsed = append(parsed, v)
	}

	sort.Sort(semver.Collection(parsed))

	versions := make([]string, len(parsed))
	for i, v := range parsed {
		versions[i] = v.Original()
	}
	return versions, nil
}

// classifyStatus maps a non-2xx response to a typed error.
func classifyStatus(status int, body []byte, location string) *Error {
	message := upstreamMessage(body)

	// A 400/404 whose body talks about the location means the region
	// itself was rejected. User fault, carry the detail back.
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		if strings.Contains(strings.ToLower(string(body)), "location") {
			return &Error{
				Class:      ClassInvalidLocation,
				StatusCode: status,
				Message:    fmt.Sprintf("location %q rejected by upstream", location),
				Detail:     message,
			}
		}
	}

	if status == http.StatusTooManyRequests || status >= 500 {
		return &Error{Class: ClassTransient, StatusCode: status, Message: message}
	}

	return &Error{Class: ClassUpstream, StatusCode: status, Message: message}
}

// classifyTransport maps a transport failure to a typed error. Timeouts
// are transient; anything else (DNS, refused connection) is not expected
// to clear on its own within a retry budget.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTransient, Message: "request timed out", Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Class: ClassTransient, Message: "request timed out", Err: err}
	}
	return &Error{Class: ClassNetwork, Message: "transport failure", Err: err}
}

// upstreamMessage extracts the human-readable message from an Azure
// error body, falling back to the raw (truncated) body.
func upstreamMessage(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.Code != "" {
			return fmt.Sprintf("%s: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return parsed.Error.Message
	}

	raw := strings.TrimSpace(string(body))
	if len(raw) > 256 {
		raw = raw[:256]
	}
	if raw == "" {
		return "no error body"
	}
	return raw
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

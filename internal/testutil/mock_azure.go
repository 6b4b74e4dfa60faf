// Package testutil provides a scriptable stand-in for the Azure
// container-service orchestrators endpoint, used by the server and
// integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Orchestrator is one entry of a mock version listing.
type Orchestrator struct {
	Type    string
	Version string
	Preview bool
}

// Kubernetes builds a Kubernetes orchestrator entry.
func Kubernetes(version string, preview bool) Orchestrator {
	return Orchestrator{Type: "Kubernetes", Version: version, Preview: preview}
}

// MockAzure is an httptest server mimicking the orchestrators listing
// API: per-location version sets, scriptable failure sequences, and
// request accounting for assertions.
type MockAzure struct {
	Server *httptest.Server

	mu        sync.Mutex
	locations map[string][]Orchestrator
	script    []scripted
	requests  int
	lastAuth  string
}

type scripted struct {
	status int
	body   string
}

// NewMockAzure starts the mock. Callers must Close it.
func NewMockAzure() *MockAzure {
	m := &MockAzure{
		locations: make(map[string][]Orchestrator),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock's base URL.
func (m *MockAzure) URL() string {
	return m.Server.URL
}

// Close shuts the mock down.
func (m *MockAzure) Close() {
	m.Server.Close()
}

// SetVersions installs the version listing served for a location.
func (m *MockAzure) SetVersions(location string, entries ...Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[strings.ToLower(location)] = entries
}

// ScriptFailures queues HTTP statuses to serve, one per request, before
// normal handling resumes.
func (m *MockAzure) ScriptFailures(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range statuses {
		m.script = append(m.script, scripted{status: s})
	}
}

// ScriptResponse queues one verbatim response.
func (m *MockAzure) ScriptResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{status: status, body: body})
}

// Requests returns how many orchestrator requests the mock has served.
func (m *MockAzure) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// LastAuthorization returns the Authorization header of the most recent
// request.
func (m *MockAzure) LastAuthorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAuth
}

func (m *MockAzure) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	m.lastAuth = r.Header.Get("Authorization")

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()

		w.WriteHeader(next.status)
		fmt.Fprint(w, next.body)
		return
	}

	location, ok := locationFromPath(r.URL.Path)
	var entries []Orchestrator
	if ok {
		entries, ok = m.locations[location]
	}
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"code":"LocationNotAvailable","message":"The location '%s' is not available"}}`, location)
		return
	}

	type wireItem struct {
		OrchestratorType    string `json:"orchestratorType"`
		OrchestratorVersion string `json:"orchestratorVersion"`
		IsPreview           bool   `json:"isPreview"`
	}
	items := make([]wireItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, wireItem{
			OrchestratorType:    e.Type,
			OrchestratorVersion: e.Version,
			IsPreview:           e.Preview,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"properties": map[string]any{
			"orchestrators": items,
		},
	})
}

// locationFromPath extracts <loc> from
// .../locations/<loc>/orchestrators.
func locationFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "locations" && i+2 < len(parts) && parts[i+2] == "orchestrators" {
			return strings.ToLower(parts[i+1]), true
		}
	}
	return "", false
}

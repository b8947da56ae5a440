// Package conformance provides a black-box harness that drives a running
// lulinks API over HTTP with tokens verified against a live JWKS endpoint.
package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/jwks"
	"github.com/julioonmartinez/lulinks-api/internal/jwks/jwkstest"
	"github.com/julioonmartinez/lulinks-api/internal/server"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Config holds configuration for the conformance test harness.
type Config struct {
	// Issuer and Audience are the token claims the service expects
	Issuer   string
	Audience string

	// Store overrides the in-memory document store
	Store storage.Store

	// NATSURL publishes change events when set; events are dropped otherwise
	NATSURL string
}

// Harness runs the API and a token issuer side by side.
type Harness struct {
	issuer *jwkstest.Issuer
	keys   *httptest.Server
	server *httptest.Server
	pub    event.Publisher
}

// Response is a decoded API reply.
type Response struct {
	Status        int
	CorrelationID string
	Data          json.RawMessage
	Error         struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlationId"`
	}
}

// NewHarness starts the API behind an httptest server.
func NewHarness(cfg Config) (*Harness, error) {
	if cfg.Store == nil {
		cfg.Store = storage.NewMemory()
	}

	issuer := jwkstest.New(cfg.Issuer, cfg.Audience)
	keys := issuer.Server()
	pub := event.NewPublisher(cfg.NATSURL)

	handler, err := server.NewRouter(server.Deps{
		Store:     cfg.Store,
		Verifier:  jwks.NewClient(keys.URL, cfg.Issuer, cfg.Audience),
		Publisher: pub,
	}, server.Options{AllowedOrigins: []string{"http://localhost:4200"}})
	if err != nil {
		keys.Close()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &Harness{
		issuer: issuer,
		keys:   keys,
		server: httptest.NewServer(handler),
		pub:    pub,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Token mints a valid ID token for uid.
func (h *Harness) Token(uid string) string {
	return h.issuer.Token(uid)
}

// Close shuts down the servers and the publisher.
func (h *Harness) Close() {
	h.server.Close()
	h.keys.Close()
	h.pub.Close()
}

// Do sends a request; an empty token sends no Authorization header.
func (h *Harness) Do(t *testing.T, method, path, token string, body interface{}) Response {
	t.Helper()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.URL()+path, payload)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := Response{Status: resp.StatusCode, CorrelationID: resp.Header.Get("X-Correlation-Id")}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env struct {
		Data  json.RawMessage  `json:"data"`
		Error *json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		out.Data = env.Data
		if env.Error != nil {
			require.NoError(t, json.Unmarshal(*env.Error, &out.Error))
		}
	}
	return out
}

// Decode unmarshals the data member of a reply.
func (r Response) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

// RunConformanceTests runs the full suite against the harness.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("Envelope", h.testEnvelope)
	t.Run("Ownership", h.testOwnership)
	t.Run("ChildOwnership", h.testChildOwnership)
	t.Run("Statistics", h.testStatistics)
}

func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func (h *Harness) testEnvelope(t *testing.T) {
	resp := h.Do(t, http.MethodGet, "/api/getProfile/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, resp.CorrelationID, resp.Error.CorrelationID)

	resp = h.Do(t, http.MethodPost, "/api/createProfile", "not-a-token", map[string]interface{}{"userName": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func (h *Harness) testOwnership(t *testing.T) {
	owner, other := h.Token("conformance-owner"), h.Token("conformance-other")

	created := h.Do(t, http.MethodPost, "/api/createProfile", owner, map[string]interface{}{
		"userName":  "Conformance",
		"createdBy": "someone-else",
	})
	require.Equal(t, http.StatusCreated, created.Status)
	var profile map[string]interface{}
	created.Decode(t, &profile)
	id, _ := profile["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "conformance-owner", profile["createdBy"])

	read := h.Do(t, http.MethodGet, "/api/getProfile/"+id, "", nil)
	assert.Equal(t, http.StatusOK, read.Status)

	denied := h.Do(t, http.MethodPut, "/api/updateProfile/"+id, other, map[string]interface{}{"bio": "hijack"})
	assert.Equal(t, http.StatusForbidden, denied.Status)
	assert.Equal(t, "FORBIDDEN", denied.Error.Code)

	dup := h.Do(t, http.MethodPost, "/api/createProfile", other, map[string]interface{}{"userName": "conformance"})
	assert.Equal(t, http.StatusConflict, dup.Status)

	updated := h.Do(t, http.MethodPut, "/api/updateProfile/"+id, owner, map[string]interface{}{"bio": "hello"})
	require.Equal(t, http.StatusOK, updated.Status)
	var after map[string]interface{}
	updated.Decode(t, &after)
	assert.Equal(t, "hello", after["bio"])
	assert.Equal(t, "Conformance", after["userName"])
	assert.Equal(t, "conformance-owner", after["createdBy"])

	assert.Equal(t, http.StatusOK, h.Do(t, http.MethodDelete, "/api/deleteProfile/"+id, owner, nil).Status)
	assert.Equal(t, http.StatusNotFound, h.Do(t, http.MethodGet, "/api/getProfile/"+id, "", nil).Status)
}

func (h *Harness) testChildOwnership(t *testing.T) {
	owner, other := h.Token("child-owner"), h.Token("child-other")

	created := h.Do(t, http.MethodPost, "/api/createProfile", owner, map[string]interface{}{"userName": "children"})
	require.Equal(t, http.StatusCreated, created.Status)
	var profile map[string]interface{}
	created.Decode(t, &profile)
	pid := profile["id"].(string)

	link := map[string]interface{}{"url": "https://example.com", "name": "Example"}
	assert.Equal(t, http.StatusForbidden, h.Do(t, http.MethodPost, "/api/profile/"+pid+"/link", other, link).Status)
	assert.Equal(t, http.StatusCreated, h.Do(t, http.MethodPost, "/api/profile/"+pid+"/link", owner, link).Status)

	widget := h.Do(t, http.MethodPost, "/api/profile/"+pid+"/widgets", owner, map[string]interface{}{"type": "music", "active": true})
	require.Equal(t, http.StatusCreated, widget.Status)
	var w map[string]interface{}
	widget.Decode(t, &w)
	wid := w["id"].(string)

	assert.Equal(t, http.StatusForbidden,
		h.Do(t, http.MethodDelete, "/api/profile/"+pid+"/widgets/"+wid, other, nil).Status)

	var links []map[string]interface{}
	list := h.Do(t, http.MethodGet, "/api/profile/"+pid+"/links", "", nil)
	require.Equal(t, http.StatusOK, list.Status)
	list.Decode(t, &links)
	assert.Len(t, links, 1)
}

func (h *Harness) testStatistics(t *testing.T) {
	send := func(kind, visitor string) {
		body := map[string]interface{}{"profileId": "conf-p", "widgetId": "conf-w", "type": kind}
		if visitor != "" {
			body["uniqueId"] = visitor
		}
		resp := h.Do(t, http.MethodPost, "/api/statistics", "", body)
		require.Equal(t, http.StatusOK, resp.Status)
	}
	send("views", "v1")
	send("views", "v1")
	send("clicks", "v2")

	resp := h.Do(t, http.MethodGet, "/api/statistics?profileId=conf-p&widgetId=conf-w", "", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var stats struct {
		Views       int64    `json:"views"`
		Clicks      int64    `json:"clicks"`
		UniqueViews int64    `json:"uniqueViews"`
		UniqueIDs   []string `json:"uniqueIds"`
	}
	resp.Decode(t, &stats)
	assert.Equal(t, int64(2), stats.Views)
	assert.Equal(t, int64(1), stats.Clicks)
	assert.Equal(t, int64(2), stats.UniqueViews)
	assert.Equal(t, []string{"v1", "v2"}, stats.UniqueIDs)

	bad := h.Do(t, http.MethodPost, "/api/statistics", "", map[string]interface{}{"profileId": "conf-p", "type": "likes"})
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Equal(t, "VALIDATION_ERROR", bad.Error.Code)
}

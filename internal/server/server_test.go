// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julioonmartinez/lulinks-api/internal/event"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/julioonmartinez/lulinks-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenVerifier accepts "token-<uid>" bearer tokens
type tokenVerifier struct{}

func (tokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if strings.HasPrefix(token, "token-") {
		return strings.TrimPrefix(token, "token-"), nil
	}
	return "", errors.New("signature invalid")
}

// mockPublisher records published resource events
type mockPublisher struct {
	event.Noop
	mu      sync.Mutex
	actions []string
}

func (m *mockPublisher) PublishResourceChanged(ctx context.Context, action event.Action, r model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, string(r.Kind)+"."+string(action))
	return nil
}

type testEnv struct {
	handler http.Handler
	store   *storage.Memory
	pub     *mockPublisher
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := storage.NewMemory()
	pub := &mockPublisher{}
	h, err := NewRouter(Deps{Store: store, Verifier: tokenVerifier{}, Publisher: pub}, opts)
	require.NoError(t, err)
	return &testEnv{handler: h, store: store, pub: pub}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code          string      `json:"code"`
		Message       string      `json:"message"`
		CorrelationID string      `json:"correlationId"`
		Details       interface{} `json:"details"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, uid string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer token-"+uid)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func decodeData(t *testing.T, env envelope) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func decodeList(t *testing.T, env envelope) []map[string]interface{} {
	t.Helper()
	var l []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &l))
	return l
}

func (e *testEnv) createProfile(t *testing.T, uid, userName string) string {
	t.Helper()
	rr, env := e.do(t, http.MethodPost, "/api/createProfile", uid, map[string]interface{}{"userName": userName})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeData(t, env)["id"].(string)
}

func TestHealthzEndpoint(t *testing.T) {
	e := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestReadyzEndpoint(t *testing.T) {
	e := newTestEnv(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestCorrelationIDPropagation(t *testing.T) {
	e := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/getProfile/missing", nil)
	req.Header.Set("X-Correlation-Id", "corr-123")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	assert.Equal(t, "corr-123", rr.Header().Get("X-Correlation-Id"))
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "corr-123", env.Error.CorrelationID)

	rr, _ = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-Id"))
}

func TestProfileLifecycle(t *testing.T) {
	e := newTestEnv(t, Options{})

	// Client supplied reserved fields are ignored
	rr, env := e.do(t, http.MethodPost, "/api/createProfile", "alice", map[string]interface{}{
		"userName": "Alice", "createdBy": "mallory", "id": "chosen",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeData(t, env)
	id := created["id"].(string)
	assert.NotEqual(t, "chosen", id)
	assert.Equal(t, "alice", created["createdBy"])
	assert.Equal(t, true, created["status"])

	rr, env = e.do(t, http.MethodGet, "/api/getProfile/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Alice", decodeData(t, env)["userName"])

	rr, env = e.do(t, http.MethodGet, "/api/getProfiles", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)

	rr, env = e.do(t, http.MethodPut, "/api/updateProfile/"+id, "alice", map[string]interface{}{"bio": "hi", "createdBy": "bob"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeData(t, env)
	assert.Equal(t, "hi", updated["bio"])
	assert.Equal(t, "alice", updated["createdBy"])
	assert.Equal(t, "Alice", updated["userName"])

	rr, _ = e.do(t, http.MethodDelete, "/api/deleteProfile/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, _ = e.do(t, http.MethodGet, "/api/getProfile/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Equal(t, []string{"profile.created", "profile.updated", "profile.deleted"}, e.pub.actions)
}

func TestAuthErrors(t *testing.T) {
	e := newTestEnv(t, Options{})
	id := e.createProfile(t, "alice", "alice")

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		header string
		status int
		code   string
	}{
		{"create without token", http.MethodPost, "/api/createProfile", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid token", http.MethodPost, "/api/createProfile", "", "Bearer forged", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"update by stranger", http.MethodPut, "/api/updateProfile/" + id, "bob", "", http.StatusForbidden, "FORBIDDEN"},
		{"delete by stranger", http.MethodDelete, "/api/deleteProfile/" + id, "bob", "", http.StatusForbidden, "FORBIDDEN"},
		{"update missing", http.MethodPut, "/api/updateProfile/missing", "bob", "", http.StatusNotFound, "NOT_FOUND"},
		{"delete anonymous", http.MethodDelete, "/api/deleteProfile/" + id, "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{"userName":"x"}`))
			if tt.uid != "" {
				req.Header.Set("Authorization", "Bearer token-"+tt.uid)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			e.handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			var env envelope
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	// The profile is untouched after the denied mutations
	rr, env := e.do(t, http.MethodGet, "/api/getProfile/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", decodeData(t, env)["userName"])
}

func TestLegacyProfileCannotBeMutated(t *testing.T) {
	e := newTestEnv(t, Options{})
	now := time.Now()
	require.NoError(t, e.store.CreateResource(context.Background(), model.Resource{
		Kind: model.KindProfile, ID: "legacy", CreatedAt: now, UpdatedAt: now,
		Data: map[string]interface{}{"userName": "old"}, UniqueKey: "old",
	}))

	rr, _ := e.do(t, http.MethodPut, "/api/updateProfile/legacy", "alice", map[string]interface{}{"bio": "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDuplicateUserName(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.createProfile(t, "alice", "Alice")

	rr, env := e.do(t, http.MethodPost, "/api/createProfile", "bob", map[string]interface{}{"userName": " alice "})
	assert.Equal(t, http.StatusConflict, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	bobID := e.createProfile(t, "bob", "bob")
	rr, _ = e.do(t, http.MethodPut, "/api/updateProfile/"+bobID, "bob", map[string]interface{}{"userName": "ALICE"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestProfileValidation(t *testing.T) {
	e := newTestEnv(t, Options{})

	rr, env := e.do(t, http.MethodPost, "/api/createProfile", "alice", map[string]interface{}{"name": "no handle"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/createProfile", strings.NewReader(`[1,2]`))
	req.Header.Set("Authorization", "Bearer token-alice")
	rr2 := httptest.NewRecorder()
	e.handler.ServeHTTP(rr2, req)
	assert.Equal(t, http.StatusBadRequest, rr2.Code)
}

func TestProfileQueries(t *testing.T) {
	e := newTestEnv(t, Options{})
	rr, _ := e.do(t, http.MethodPost, "/api/createProfile", "alice", map[string]interface{}{"userName": "Alice", "uuid": "u-1"})
	require.Equal(t, http.StatusCreated, rr.Code)
	e.createProfile(t, "bob", "bob")

	rr, env := e.do(t, http.MethodGet, "/api/getProfilesByUuid?uuid=u-1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)

	rr, _ = e.do(t, http.MethodGet, "/api/getProfilesByUuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = e.do(t, http.MethodGet, "/api/profiles/by-username?username=ALICE", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Alice", decodeData(t, env)["userName"])

	rr, _ = e.do(t, http.MethodGet, "/api/profiles/by-username?username=nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = e.do(t, http.MethodGet, "/api/getProfiles?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, env = e.do(t, http.MethodGet, "/api/getProfiles?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)
}

func TestUpgradeProfile(t *testing.T) {
	e := newTestEnv(t, Options{})
	id := e.createProfile(t, "alice", "alice")

	rr, _ := e.do(t, http.MethodPost, "/api/profile/"+id+"/upgrade", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, env := e.do(t, http.MethodPost, "/api/profile/"+id+"/upgrade", "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decodeData(t, env)
	assert.Equal(t, true, data["isPremium"])
	assert.NotEmpty(t, data["premiumSince"])

	rr, _ = e.do(t, http.MethodPost, "/api/profile/missing/upgrade", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLinksRequireParentOwnership(t *testing.T) {
	e := newTestEnv(t, Options{})
	id := e.createProfile(t, "alice", "alice")
	base := "/api/profile/" + id

	link := map[string]interface{}{"url": "https://example.com", "name": "site", "active": true}

	rr, _ := e.do(t, http.MethodPost, base+"/link", "bob", link)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = e.do(t, http.MethodPost, "/api/profile/missing/link", "alice", link)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, env := e.do(t, http.MethodPost, base+"/link", "alice", link)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	linkID := decodeData(t, env)["id"].(string)
	assert.Equal(t, id, decodeData(t, env)["profileId"])

	rr, env = e.do(t, http.MethodGet, base+"/links", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)

	rr, _ = e.do(t, http.MethodPut, base+"/link/"+linkID, "bob", map[string]interface{}{"name": "hijack"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, env = e.do(t, http.MethodPut, base+"/link/"+linkID, "alice", map[string]interface{}{"name": "renamed"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "renamed", decodeData(t, env)["name"])

	rr, _ = e.do(t, http.MethodGet, base+"/link/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = e.do(t, http.MethodDelete, base+"/link/"+linkID, "alice", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWidgets(t *testing.T) {
	e := newTestEnv(t, Options{})
	id := e.createProfile(t, "alice", "alice")
	base := "/api/profile/" + id + "/widgets"

	rr, _ := e.do(t, http.MethodPost, "/api/profile/missing/widgets", "alice", map[string]interface{}{"type": "video"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var widgetID string
	for _, w := range []map[string]interface{}{
		{"type": "video", "active": true},
		{"type": "music", "active": false},
		{"type": "video", "active": false},
	} {
		rr, env := e.do(t, http.MethodPost, base, "alice", w)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		if widgetID == "" {
			widgetID = decodeData(t, env)["id"].(string)
		}
	}

	rr, env := e.do(t, http.MethodGet, base+"/type?type=video", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 2)

	rr, _ = e.do(t, http.MethodGet, base+"/type", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = e.do(t, http.MethodGet, base+"/active", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)

	rr, env = e.do(t, http.MethodGet, base+"/"+widgetID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "video", decodeData(t, env)["type"])

	// Widget ownership follows the widget's own creator
	rr, _ = e.do(t, http.MethodPut, base+"/"+widgetID, "bob", map[string]interface{}{"active": false})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = e.do(t, http.MethodPut, base+"/"+widgetID, "alice", map[string]interface{}{"active": false})
	assert.Equal(t, http.StatusOK, rr.Code)

	// Deleting the profile removes its widgets
	rr, _ = e.do(t, http.MethodDelete, "/api/deleteProfile/"+id, "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr, _ = e.do(t, http.MethodGet, base+"/"+widgetID, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStyles(t *testing.T) {
	e := newTestEnv(t, Options{})
	id := e.createProfile(t, "alice", "alice")
	base := "/api/profile/" + id + "/styles"

	rr, env := e.do(t, http.MethodPost, base, "alice", map[string]interface{}{"name": "dark", "background": "#000"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	styleID := decodeData(t, env)["id"].(string)

	rr, _ = e.do(t, http.MethodPost, base, "", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = e.do(t, http.MethodDelete, base+"/"+styleID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, env = e.do(t, http.MethodPut, base+"/"+styleID, "alice", map[string]interface{}{"background": "#fff"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "#fff", decodeData(t, env)["background"])
	assert.Equal(t, "dark", decodeData(t, env)["name"])
}

func TestUsersAreSelfOnly(t *testing.T) {
	e := newTestEnv(t, Options{})

	rr, env := e.do(t, http.MethodPost, "/api/users", "alice", map[string]interface{}{"uid": "someone-else", "email": "a@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "alice", decodeData(t, env)["id"])

	rr, _ = e.do(t, http.MethodPost, "/api/users", "alice", map[string]interface{}{})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = e.do(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr, env = e.do(t, http.MethodGet, "/api/users", "bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, env), 1)

	rr, _ = e.do(t, http.MethodGet, "/api/users/alice", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = e.do(t, http.MethodGet, "/api/users/alice", "alice", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Self is checked before existence
	rr, _ = e.do(t, http.MethodGet, "/api/users/ghost", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = e.do(t, http.MethodGet, "/api/users/bob", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, env = e.do(t, http.MethodPut, "/api/users/alice", "alice", map[string]interface{}{"displayName": "Alice"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Alice", decodeData(t, env)["displayName"])

	rr, _ = e.do(t, http.MethodDelete, "/api/users/alice", "alice", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStatisticsEndpoints(t *testing.T) {
	e := newTestEnv(t, Options{})

	events := []map[string]interface{}{
		{"profileId": "p1", "widgetId": "w1", "type": "views", "uniqueId": "v1"},
		{"profileId": "p1", "widgetId": "w1", "type": "views", "uniqueId": "v2"},
		{"profileId": "p1", "widgetId": "w1", "type": "clicks", "uniqueId": "v1"},
	}
	for _, ev := range events {
		rr, _ := e.do(t, http.MethodPost, "/api/statistics", "", ev)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}

	rr, env := e.do(t, http.MethodGet, "/api/statistics?profileId=p1&widgetId=w1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeData(t, env)
	assert.Equal(t, float64(2), data["views"])
	assert.Equal(t, float64(1), data["clicks"])
	assert.Equal(t, float64(2), data["uniqueViews"])
	assert.Equal(t, []interface{}{"v1", "v2"}, data["uniqueIds"])

	rr, _ = e.do(t, http.MethodGet, "/api/statistics?profileId=p1", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = e.do(t, http.MethodGet, "/api/statistics", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rejected := []map[string]interface{}{
		{"profileId": "p1", "type": "shares", "uniqueId": "v1"},
		{"profileId": "p1", "type": "views"},
		{"profileId": "p1", "type": "views", "uniqueId": ""},
		{"type": "views", "uniqueId": "v1"},
	}
	for _, body := range rejected {
		rr, env = e.do(t, http.MethodPost, "/api/statistics", "", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "%v", body)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	}

	// Rejected events leave the counters alone
	rr, env = e.do(t, http.MethodGet, "/api/statistics?profileId=p1&widgetId=w1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeData(t, env)["views"])
}

func TestStatisticsRateLimit(t *testing.T) {
	e := newTestEnv(t, Options{StatsRateLimit: 2})
	ev := map[string]interface{}{"profileId": "p1", "type": "views", "uniqueId": "v1"}

	for i := 0; i < 2; i++ {
		rr, _ := e.do(t, http.MethodPost, "/api/statistics", "", ev)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr, env := e.do(t, http.MethodPost, "/api/statistics", "", ev)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)

	// Reads are not limited
	rr, _ = e.do(t, http.MethodGet, "/api/statistics?profileId=p1", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, Options{AllowedOrigins: []string{"http://localhost:4200"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/getProfiles", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:4200", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/getProfiles", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, Options{})
	rr, env := e.do(t, http.MethodPatch, "/api/createProfile", "alice", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "METHOD_NOT_ALLOWED", env.Error.Code)
}

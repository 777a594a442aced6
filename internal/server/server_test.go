package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/app"
	"github.com/quietfield/a11yd/internal/auditor"
	"github.com/quietfield/a11yd/internal/auth"
	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/server"
	"github.com/quietfield/a11yd/internal/store"
	"github.com/quietfield/a11yd/internal/testutil"
)

type testServer struct {
	*httptest.Server
	driver *testutil.DummyDriver
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithOrigin(t, "*")
}

func newTestServerWithOrigin(t *testing.T, allowedOrigin string) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "a11yd-test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tokens, err := auth.NewManager(config.AuthConfig{
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		BcryptCost: 4,
	})
	require.NoError(t, err)

	page := &testutil.DummyPage{
		PageURL:   "https://example.com/",
		PageTitle: "Example Domain",
		EvalResults: map[string]any{
			"typeof window.axe": true,
			"window.axe.run": &auditor.Result{
				Violations: []auditor.Finding{{
					ID:     "image-alt",
					Impact: "critical",
					Tags:   []string{"wcag2a"},
					Nodes:  []auditor.Node{{HTML: `<img src="x.png">`}},
				}},
				Passes:     []auditor.Finding{{ID: "document-title"}, {ID: "html-has-lang"}},
				TestEngine: auditor.Engine{Name: "axe-core", Version: "4.10.0"},
			},
			"getRules": []auditor.RuleInfo{{RuleID: "image-alt", Tags: []string{"wcag2a"}}},
		},
	}
	driver := &testutil.DummyDriver{Page: page}
	aud := auditor.NewWithScript("window.axe = {};", driver, zap.NewNop())
	orch := app.NewOrchestrator(driver, aud, st, zap.NewNop())

	srv := server.NewServer(
		config.ServerConfig{Addr: ":0", AllowedOrigin: allowedOrigin},
		"test",
		orch, st, tokens,
		zap.NewNop(),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, driver: driver}
}

func postJSON(t *testing.T, ts *testServer, path string, body any, token string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.HeaderName, token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, ts *testServer, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(auth.HeaderName, token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func registerUser(t *testing.T, ts *testServer, username, password string) string {
	t.Helper()
	resp := postJSON(t, ts, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		username string
		password string
		wantMsg  string
	}{
		{"short username", "ab", "secret1", "username must be at least 3 characters long"},
		{"short password", "alice", "12345", "password must be at least 6 characters long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts, "/api/auth/register", map[string]string{
				"username": tt.username,
				"password": tt.password,
			}, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			decode(t, resp, &body)
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts, "alice", "secret1")

	resp := postJSON(t, ts, "/api/auth/register", map[string]string{
		"username": "alice",
		"password": "different",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "user already exists", body["error"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts, "alice", "secret1")

	resp := postJSON(t, ts, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Token)
}

// Unknown users and wrong passwords must produce the same response.
func TestLoginFailureIsUniform(t *testing.T) {
	ts := newTestServer(t)
	registerUser(t, ts, "alice", "secret1")

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong-password"},
		{"username": "nobody", "password": "secret1"},
	} {
		resp := postJSON(t, ts, "/api/auth/login", creds, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body map[string]string
		decode(t, resp, &body)
		assert.Equal(t, "invalid credentials", body["error"])
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	resp := get(t, ts, "/api/auth/me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "passwordHash")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	for _, path := range []string{"/api/auth/me", "/api/history"} {
		resp := get(t, ts, path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()

		resp = get(t, ts, path, "tampered-"+token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestAnalyzeAndHistory(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	resp := get(t, ts, "/api/history", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty []json.RawMessage
	decode(t, resp, &empty)
	assert.Empty(t, empty)

	resp = postJSON(t, ts, "/api/analyze", map[string]any{"url": "example.com"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep struct {
		URL       string `json:"url"`
		Score     int    `json:"score"`
		Persisted bool   `json:"persisted"`
		Summary   struct {
			TotalViolations int `json:"totalViolations"`
		} `json:"summary"`
	}
	decode(t, resp, &rep)
	assert.Equal(t, "https://example.com/", rep.URL)
	assert.Equal(t, 67, rep.Score)
	assert.Equal(t, 1, rep.Summary.TotalViolations)
	assert.True(t, rep.Persisted)

	resp = get(t, ts, "/api/history", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []json.RawMessage
	decode(t, resp, &history)
	assert.Len(t, history, 1)
}

func TestAnalyzeRejectsMissingURL(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	resp := postJSON(t, ts, "/api/analyze", map[string]any{"url": ""}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryIsOwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := registerUser(t, ts, "alice", "secret1")
	bobToken := registerUser(t, ts, "bob", "secret2")

	resp := postJSON(t, ts, "/api/analyze", map[string]any{"url": "example.com"}, aliceToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = get(t, ts, "/api/history", bobToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []json.RawMessage
	decode(t, resp, &history)
	assert.Empty(t, history)
}

func TestRules(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/rules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Rules []struct {
			RuleID string `json:"ruleId"`
		} `json:"rules"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Rules, 1)
	assert.Equal(t, "image-alt", body.Rules[0].RuleID)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "not found", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/analyze", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), auth.HeaderName)
}

func TestAnalyzeWebSocket(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/api/ws/analyze?url=example.com&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var stages []string
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))

		if raw, ok := msg["report"]; ok {
			var rep struct {
				Score int `json:"score"`
			}
			require.NoError(t, json.Unmarshal(raw, &rep))
			assert.Equal(t, 67, rep.Score)
			break
		}
		if raw, ok := msg["stage"]; ok {
			var stage string
			require.NoError(t, json.Unmarshal(raw, &stage))
			stages = append(stages, stage)
		}
	}

	assert.Equal(t, []string{
		"validated", "navigating", "auditing", "built", "persisted", "completed",
	}, stages)
}

func TestAnalyzeWebSocketWaitTime(t *testing.T) {
	ts := newTestServer(t)
	token := registerUser(t, ts, "alice", "secret1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/api/ws/analyze?url=example.com&waitTime=5000&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Drain until the final report so the analysis has finished.
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if _, ok := msg["report"]; ok {
			break
		}
	}

	assert.Equal(t, 5*time.Second, ts.driver.LastOpts().NavigationTimeout)
}

func TestAnalyzeWebSocketOriginEnforced(t *testing.T) {
	ts := newTestServerWithOrigin(t, "https://app.example")
	token := registerUser(t, ts, "alice", "secret1")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") +
		"/api/ws/analyze?url=example.com&token=" + token

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{
		"Origin": {"https://evil.example"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{
		"Origin": {"https://app.example"},
	})
	require.NoError(t, err)
	conn.Close()
}

func TestAnalyzeWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/analyze?url=example.com"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/auth"
	"messagecraft/pkg/persistence"
	"messagecraft/pkg/pipeline"
)

// fakeGenerator returns a canned pipeline result immediately.
type fakeGenerator struct {
	quality float64
	cycles  int
	err     error
}

func (f *fakeGenerator) Run(_ context.Context, req pipeline.Request) (*pipeline.State, error) {
	if f.err != nil {
		return nil, f.err
	}
	st := pipeline.NewState(req.SessionID, req.BusinessDescription, req.Questionnaire)
	st.CurrentQuality = f.quality
	st.ReflectionCycle = f.cycles
	st.FinalOutput = pipeline.Result{
		"messaging_framework": map[string]any{"value_proposition": "we deliver"},
	}
	return st, nil
}

type testEnv struct {
	ts     *httptest.Server
	store  *persistence.Store
	server *Server
}

func newTestEnv(t *testing.T, gen Generator, signupCredits int) *testEnv {
	t.Helper()

	store, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authSvc := auth.NewService(store, signupCredits)
	server := NewServer(store, authSvc, gen, Options{
		QualityThreshold:    8.0,
		MaxReflectionCycles: 3,
	})

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: store, server: server}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (e *testEnv) registerAndLogin(t *testing.T, email string) string {
	t.Helper()

	resp, _ := e.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, payload := e.request(t, http.MethodPost, "/api/login", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := payload["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) waitForStatus(t *testing.T, sessionID, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		sess, err := e.store.GetSession(sessionID)
		return err == nil && sess.Status == want
	}, 5*time.Second, 10*time.Millisecond, "session never reached status %s", want)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	resp, payload := env.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", payload["status"])
}

func TestRegisterValidationErrors(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)

	resp, _ := env.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": "bad", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": "ok@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterDuplicateConflict(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	env.registerAndLogin(t, "dup@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"email": "dup@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	env.registerAndLogin(t, "user@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)

	resp, _ := env.request(t, http.MethodPost, "/api/generate", "", map[string]string{
		"business_description": "We sell software.",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/api/playbooks", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGenerateFullFlow(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9.1, cycles: 1}, 3)
	token := env.registerAndLogin(t, "flow@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell project management software to construction firms.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sessionID, _ := payload["session_id"].(string)
	require.NotEmpty(t, sessionID)

	env.waitForStatus(t, sessionID, persistence.SessionCompleted)

	// Session endpoint reports the completed run and its playbook
	resp, payload = env.request(t, http.MethodGet, "/api/sessions/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := payload["session"].(map[string]any)
	assert.Equal(t, persistence.SessionCompleted, sess["status"])
	assert.InDelta(t, 9.1, sess["quality_score"].(float64), 0.001)
	playbookID, _ := payload["playbook_id"].(string)
	require.NotEmpty(t, playbookID)

	// One credit was debited
	resp, payload = env.request(t, http.MethodGet, "/api/credits", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), payload["balance"])

	// The playbook is retrievable with its content
	resp, payload = env.request(t, http.MethodGet, "/api/playbooks/"+playbookID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, payload["content"], "value_proposition")
}

func TestGenerateRequiresDescription(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	token := env.registerAndLogin(t, "empty@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateRejectsWithoutCredits(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 0)
	token := env.registerAndLogin(t, "broke@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell software.",
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestGenerateFailureMarksSession(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{err: context.DeadlineExceeded}, 3)
	token := env.registerAndLogin(t, "fail@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell software.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sessionID := payload["session_id"].(string)

	env.waitForStatus(t, sessionID, persistence.SessionFailed)

	sess, err := env.store.GetSession(sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Error)
}

func TestSessionOwnershipHidden(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	ownerToken := env.registerAndLogin(t, "owner@example.com")
	otherToken := env.registerAndLogin(t, "other@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", ownerToken, map[string]string{
		"business_description": "We sell software.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sessionID := payload["session_id"].(string)
	env.waitForStatus(t, sessionID, persistence.SessionCompleted)

	resp, _ = env.request(t, http.MethodGet, "/api/sessions/"+sessionID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlaybookListAndDelete(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	token := env.registerAndLogin(t, "crud@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell software.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.waitForStatus(t, payload["session_id"].(string), persistence.SessionCompleted)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/playbooks", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()

	var list []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)
	playbookID := list[0]["id"].(string)

	resp, _ = env.request(t, http.MethodDelete, "/api/playbooks/"+playbookID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/api/playbooks/"+playbookID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsageUnavailableWithoutPrometheus(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	token := env.registerAndLogin(t, "usage@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell software.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	sessionID := payload["session_id"].(string)
	env.waitForStatus(t, sessionID, persistence.SessionCompleted)

	resp, _ = env.request(t, http.MethodGet, "/api/sessions/"+sessionID+"/usage", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	token := env.registerAndLogin(t, "bye@example.com")

	resp, _ := env.request(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/api/credits", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestShutdownWaitsForRuns(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{quality: 9}, 3)
	token := env.registerAndLogin(t, "shutdown@example.com")

	resp, payload := env.request(t, http.MethodPost, "/api/generate", token, map[string]string{
		"business_description": "We sell software.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))

	// The in-flight run finished before shutdown returned
	sess, err := env.store.GetSession(payload["session_id"].(string))
	require.NoError(t, err)
	assert.Contains(t, []string{persistence.SessionCompleted, persistence.SessionFailed}, sess.Status)
}

func TestPlaybookTitleTruncation(t *testing.T) {
	assert.Equal(t, "Messaging Playbook", playbookTitle("   "))
	assert.Equal(t, "short description", playbookTitle("short description"))

	long := playbookTitle("We provide comprehensive enterprise resource planning consulting for manufacturers")
	assert.LessOrEqual(t, len([]rune(long)), 62)
	assert.Contains(t, long, "…")
}

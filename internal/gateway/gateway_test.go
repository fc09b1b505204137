package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/codebox/internal/catalog"
	"github.com/specialistvlad/codebox/internal/dispatcher"
	"github.com/specialistvlad/codebox/internal/protocol"
	"github.com/specialistvlad/codebox/internal/session"
	"github.com/specialistvlad/codebox/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	server  *httptest.Server
	factory *testutil.FakeFactory
	logs    *testutil.SafeBuffer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	ff := &testutil.FakeFactory{}
	mem := catalog.NewMemory()
	obs := catalog.NewObserver(ctx, mem)
	reg := session.NewRegistry(ff.Factory(), session.WithObserver(obs))
	disp := dispatcher.New(ctx, reg, dispatcher.Config{Workers: 2, QueueDepth: 8})

	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	mux := http.NewServeMux()
	New(disp, mem, cfg).Register(mux)

	logs := &testutil.SafeBuffer{}
	srv := httptest.NewServer(WithRequestLogging(testutil.NewLogger(logs), mux))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = disp.Close(ctx)
		_ = reg.Shutdown(ctx)
		obs.Close()
	})
	return &harness{server: srv, factory: ff, logs: logs}
}

func (h *harness) execute(t *testing.T, key, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/execute", strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(protocol.HeaderAPIKey, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestExecute_PersistsStateAcrossRequests(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Config{})

	// --- Act ---
	status1, body1 := h.execute(t, "key-a", `{"code":"x = 5"}`)
	status2, body2 := h.execute(t, "key-a", `{"code":"print(x)"}`)

	// --- Assert ---
	assert.Equal(t, http.StatusOK, status1)
	assert.JSONEq(t, `{"result":""}`, body1)
	assert.Equal(t, http.StatusOK, status2)
	assert.JSONEq(t, `{"result":"5\n"}`, body2)
	assert.Equal(t, 1, h.factory.Created())
}

func TestExecute_KeysAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	status, _ := h.execute(t, "key-a", `{"code":"x = 5"}`)
	require.Equal(t, http.StatusOK, status)
	status, body := h.execute(t, "key-b", `{"code":"print(x)"}`)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"detail":"NameError: name 'x' is not defined"}`, body)
}

func TestExecute_RequestErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{MaxBodyBytes: 64})

	testCases := []struct {
		name       string
		key        string
		body       string
		wantStatus int
		wantDetail string
	}{
		{name: "missing key", body: `{"code":"x = 1"}`, wantStatus: http.StatusForbidden, wantDetail: "Not authenticated"},
		{name: "invalid json", key: "k", body: `{"code":`, wantStatus: http.StatusUnprocessableEntity, wantDetail: "malformed request"},
		{name: "missing code", key: "k", body: `{"files":[]}`, wantStatus: http.StatusUnprocessableEntity, wantDetail: "code"},
		{name: "negative timeout", key: "k", body: `{"code":"","timeout":-1}`, wantStatus: http.StatusUnprocessableEntity, wantDetail: "timeout"},
		{name: "body too large", key: "k", body: `{"code":"` + strings.Repeat("a", 128) + `"}`, wantStatus: http.StatusRequestEntityTooLarge, wantDetail: "too large"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status, body := h.execute(t, tc.key, tc.body)

			assert.Equal(t, tc.wantStatus, status)
			var reply protocol.ErrorReply
			require.NoError(t, protocol.Decode([]byte(body), &reply))
			assert.Contains(t, reply.Detail, tc.wantDetail)
		})
	}
	assert.Equal(t, 0, h.factory.Created(), "rejected requests must not create sessions")
}

func TestExecute_TimeoutDiscardsSession(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Config{})
	status, _ := h.execute(t, "key-a", `{"code":"x = 5"}`)
	require.Equal(t, http.StatusOK, status)

	// --- Act ---
	status, body := h.execute(t, "key-a", `{"code":"hang()","timeout":1}`)

	// --- Assert ---
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"detail":"Execution timed out after 1 seconds"}`, body)

	status, body = h.execute(t, "key-a", `{"code":"print(x)"}`)
	assert.Equal(t, http.StatusInternalServerError, status, "state must not survive the timeout")
	assert.Contains(t, body, "NameError")
	assert.Equal(t, 2, h.factory.Created())
}

func TestExecute_ClientDisconnectKeepsSession(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Config{})
	status, _ := h.execute(t, "key-a", `{"code":"x = 5"}`)
	require.Equal(t, http.StatusOK, status)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.server.URL+"/execute", strings.NewReader(`{"code":"sleep(300)","timeout":5}`))
	require.NoError(t, err)
	req.Header.Set(protocol.HeaderAPIKey, "key-a")

	// --- Act ---
	_, err = http.DefaultClient.Do(req)
	require.Error(t, err)
	status, body := h.execute(t, "key-a", `{"code":"print(x)"}`)

	// --- Assert ---
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":"5\n"}`, body)
	assert.Equal(t, 1, h.factory.Created())
	assert.NotContains(t, h.logs.String(), "Execution timed out")
}

func TestExecute_TimeoutIsCapped(t *testing.T) {
	t.Parallel()

	g := New(nil, nil, Config{DefaultTimeout: 30 * time.Second, MaxTimeout: time.Minute})

	assert.Equal(t, 30*time.Second, g.timeout(0))
	assert.Equal(t, 5*time.Second, g.timeout(5))
	assert.Equal(t, time.Minute, g.timeout(3600))
}

type stubDispatcher struct {
	result dispatcher.Result
}

func (s stubDispatcher) Execute(context.Context, string, dispatcher.Request) dispatcher.Result {
	return s.result
}

func (s stubDispatcher) Stats() dispatcher.Stats { return dispatcher.Stats{Workers: 3} }

func TestExecute_FailureStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		kind dispatcher.Kind
		want int
	}{
		{dispatcher.KindTimeout, http.StatusInternalServerError},
		{dispatcher.KindExecutionError, http.StatusInternalServerError},
		{dispatcher.KindOverloaded, http.StatusServiceUnavailable},
		{dispatcher.KindUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			t.Parallel()
			stub := stubDispatcher{result: dispatcher.Result{Failure: &dispatcher.Failure{Kind: tc.kind, Message: "boom"}}}
			mux := http.NewServeMux()
			New(stub, catalog.NewMemory(), Config{MaxBodyBytes: 1024}).Register(mux)

			req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"code":"x"}`))
			req.Header.Set(protocol.HeaderAPIKey, "k")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			assert.JSONEq(t, `{"detail":"boom"}`, rec.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
	assert.Contains(t, h.logs.String(), "request_id=")
}

func TestSessions_ListsDigestsOnly(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	h := newHarness(t, Config{})
	status, _ := h.execute(t, "secret-key", `{"code":"x = 1"}`)
	require.Equal(t, http.StatusOK, status)

	// --- Act & Assert ---
	var reply SessionsReply
	require.Eventually(t, func() bool {
		resp, err := http.Get(h.server.URL + "/sessions")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		if strings.Contains(string(data), "secret-key") {
			t.Errorf("identity leaked in /sessions: %s", data)
		}
		reply = SessionsReply{}
		return protocol.Decode(data, &reply) == nil && len(reply.Sessions) == 1 && reply.Sessions[0].Executions == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, session.Digest("secret-key"), reply.Sessions[0].Digest)
	assert.Equal(t, 2, reply.Dispatcher.Workers)
	assert.Equal(t, int64(1), reply.Dispatcher.Succeeded)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	resp, err := http.Get(h.server.URL + "/execute")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

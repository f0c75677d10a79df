package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/apia-framework/a2a/server"
	config "github.com/apia-framework/a2a/server/config"
	types "github.com/apia-framework/a2a/types"
)

func newTestServer(t *testing.T) (*server.A2AServerImpl, *httptest.Server) {
	t.Helper()

	cfg, err := config.NewWithDefaults(context.Background(), &config.Config{
		AgentName:        "test-agent",
		AgentDescription: "agent under test",
		AgentVersion:     "0.0.1",
		AgentURL:         "http://localhost:8000",
	})
	require.NoError(t, err)

	srv := server.NewDefaultA2AServer(cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postRPC(t *testing.T, url string, method string, params any) *http.Response {
	t.Helper()

	rawParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(types.JSONRPCRequest{
		JSONRPC: types.JSONRPCVersion,
		ID:      "req-1",
		Method:  method,
		Params:  rawParams,
	})
	require.NoError(t, err)

	resp, err := http.Post(url+"/a2a", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeRPC(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, types.HealthStatusHealthy, health["status"])
}

func TestAgentCardEndpoint(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Router().Register(echoSkill("assess"), func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(nil), nil
	})

	resp, err := http.Get(ts.URL + server.AgentCardPath)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var card types.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))

	assert.Equal(t, "test-agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "assess", card.Skills[0].ID)
}

func TestTaskSendOverHTTP(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(types.NewAgentTextMessage("served")), nil
	})

	resp := postRPC(t, ts.URL, types.MethodTasksSend, sendParams("task-1", "", "hello"))
	decoded := decodeRPC(t, resp)

	require.NotNil(t, decoded["result"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "task-1", result["id"])
	status := result["status"].(map[string]any)
	assert.Equal(t, "completed", status["state"])

	// tasks/get round trip
	resp = postRPC(t, ts.URL, types.MethodTasksGet, types.TaskQueryParams{ID: "task-1", HistoryLength: 5})
	decoded = decodeRPC(t, resp)
	result = decoded["result"].(map[string]any)
	assert.Len(t, result["history"], 1)

	// tasks/cancel on the terminal task is idempotent
	resp = postRPC(t, ts.URL, types.MethodTasksCancel, types.TaskIDParams{ID: "task-1"})
	decoded = decodeRPC(t, resp)
	result = decoded["result"].(map[string]any)
	status = result["status"].(map[string]any)
	assert.Equal(t, "completed", status["state"])
}

func TestRPCErrorResponses(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Router().Register(echoSkill("only"), func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(nil), nil
	})

	tests := []struct {
		name     string
		method   string
		params   any
		wantCode float64
	}{
		{"unknown method", "tasks/unknown", map[string]any{}, -32601},
		{"unroutable skill", types.MethodTasksSend, sendParams("t1", "missing", "x"), -32601},
		{"missing id", types.MethodTasksSend, types.TaskSendParams{Message: types.NewUserMessage("x", nil)}, -32602},
		{"task not found", types.MethodTasksGet, types.TaskQueryParams{ID: "ghost"}, -32001},
		{"cancel not found", types.MethodTasksCancel, types.TaskIDParams{ID: "ghost"}, -32001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRPC(t, ts.URL, tt.method, tt.params)
			decoded := decodeRPC(t, resp)

			require.NotNil(t, decoded["error"], "expected error response")
			rpcErr := decoded["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, rpcErr["code"])
		})
	}
}

func TestSendSubscribeOverSSE(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		tc.UpdateStatus(types.TaskStateWorking, types.NewAgentTextMessage("halfway"))
		return server.NewCompletedResult(types.NewAgentTextMessage("all done")), nil
	})

	rawParams, err := json.Marshal(sendParams("task-sse", "", "stream it"))
	require.NoError(t, err)
	body, err := json.Marshal(types.JSONRPCRequest{
		JSONRPC: types.JSONRPCVersion,
		ID:      "req-sse",
		Method:  types.MethodTasksSendSubscribe,
		Params:  rawParams,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/a2a", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var payloads []map[string]any
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "data: [DONE]" {
			sawDone = true
			break
		}
		require.True(t, strings.HasPrefix(line, "data: "))
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		payloads = append(payloads, payload)
	}

	assert.True(t, sawDone)
	require.Len(t, payloads, 3)

	finalEvent := payloads[2]["result"].(map[string]any)
	assert.Equal(t, true, finalEvent["final"])
	finalStatus := finalEvent["status"].(map[string]any)
	assert.Equal(t, "completed", finalStatus["state"])
}

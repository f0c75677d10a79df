package client_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	client "github.com/apia-framework/a2a/client"
	server "github.com/apia-framework/a2a/server"
	config "github.com/apia-framework/a2a/server/config"
	types "github.com/apia-framework/a2a/types"
)

func newBackend(t *testing.T) (*server.A2AServerImpl, *httptest.Server) {
	t.Helper()

	cfg, err := config.NewWithDefaults(context.Background(), &config.Config{
		AgentName:        "backend-agent",
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

func taskParams(taskID, text string) types.TaskSendParams {
	return types.TaskSendParams{
		ID:      taskID,
		Message: types.NewUserMessage(text, nil),
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://agent:8000", "http://agent:8000"},
		{"http://agent:8000/", "http://agent:8000"},
		{"agent:8000", "http://agent:8000"},
		{"https://agent.example.com//", "https://agent.example.com"},
		{"  http://agent:8000 ", "http://agent:8000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, client.NormalizeBaseURL(tt.in))
	}
}

func TestSendAndGetTask(t *testing.T) {
	srv, ts := newBackend(t)
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(types.NewAgentTextMessage("done")), nil
	})

	c := client.NewClient(ts.URL)
	ctx := context.Background()

	task, err := c.SendTask(ctx, taskParams("cli-1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "cli-1", task.ID)
	assert.Equal(t, types.TaskStateCompleted, task.Status.State)

	got, err := c.GetTask(ctx, types.TaskQueryParams{ID: "cli-1", HistoryLength: 10})
	require.NoError(t, err)
	assert.Len(t, got.History, 1)
}

func TestSendTaskFailedHandlerIsDataNotError(t *testing.T) {
	srv, ts := newBackend(t)
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		return nil, assert.AnError
	})

	c := client.NewClient(ts.URL)
	task, err := c.SendTask(context.Background(), taskParams("cli-fail", "boom"))
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFailed, task.Status.State)
}

func TestErrorResponsesAreTyped(t *testing.T) {
	_, ts := newBackend(t)
	c := client.NewClient(ts.URL)
	ctx := context.Background()

	_, err := c.GetTask(ctx, types.TaskQueryParams{ID: "ghost"})
	require.Error(t, err)
	var a2aErr *types.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, types.ErrCodeTaskNotFound, a2aErr.Code)

	_, err = c.SendTask(ctx, taskParams("no-route", "x"))
	require.Error(t, err)
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, types.ErrCodeMethodNotFound, a2aErr.Code)
}

func TestCancelTask(t *testing.T) {
	srv, ts := newBackend(t)
	started := make(chan struct{})
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		close(started)
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	})

	c := client.NewClient(ts.URL)
	ctx := context.Background()

	go func() {
		_, _ = c.SendTask(ctx, taskParams("cli-cancel", "long running"))
	}()
	<-started

	task, err := c.CancelTask(ctx, types.TaskIDParams{ID: "cli-cancel"})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCanceled, task.Status.State)
}

func TestSendTaskStreaming(t *testing.T) {
	srv, ts := newBackend(t)
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		artifact := types.Artifact{Parts: []types.Part{types.CreateTextPart("chunk")}}
		tc.UpdateStatus(types.TaskStateWorking, types.NewAgentTextMessage("halfway"))
		tc.YieldArtifact(artifact)
		return server.NewCompletedResult(types.NewAgentTextMessage("all done"), artifact), nil
	})

	c := client.NewClient(ts.URL)
	events := make(chan types.TaskUpdateEvent, 16)

	task, err := c.SendTaskStreaming(context.Background(), taskParams("cli-stream", "go"), events)
	require.NoError(t, err)
	close(events)

	assert.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)

	var statuses []types.TaskStatusUpdateEvent
	var artifacts []types.TaskArtifactUpdateEvent
	for event := range events {
		switch e := event.(type) {
		case types.TaskStatusUpdateEvent:
			statuses = append(statuses, e)
		case types.TaskArtifactUpdateEvent:
			artifacts = append(artifacts, e)
		}
	}

	require.Len(t, statuses, 3)
	assert.Equal(t, types.TaskStateWorking, statuses[0].Status.State)
	assert.False(t, statuses[0].Final)
	assert.True(t, statuses[2].Final)
	assert.Equal(t, types.TaskStateCompleted, statuses[2].Status.State)
	require.Len(t, artifacts, 1)
}

func TestSendTaskStreamingReconstructsWithoutGet(t *testing.T) {
	cfg, err := config.NewWithDefaults(context.Background(), &config.Config{
		AgentName:    "backend-agent",
		AgentVersion: "0.0.1",
	})
	require.NoError(t, err)

	srv := server.NewDefaultA2AServer(cfg, zap.NewNop())
	srv.Router().RegisterDefault(func(tc *server.TaskContext) (*server.TaskResult, error) {
		artifact := types.Artifact{Parts: []types.Part{types.CreateTextPart("chunk")}}
		tc.YieldArtifact(artifact)
		return server.NewCompletedResult(types.NewAgentTextMessage("all done"), artifact), nil
	})

	var getCalls atomic.Int32
	handler := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		require.NoError(t, readErr)
		if bytes.Contains(body, []byte(types.MethodTasksGet)) {
			getCalls.Add(1)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	c := client.NewClient(ts.URL)
	task, err := c.SendTaskStreaming(context.Background(), taskParams("cli-no-get", "go"), nil)
	require.NoError(t, err)

	assert.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
	assert.Equal(t, int32(0), getCalls.Load(), "final event arrived, no tasks/get expected")
}

func TestSendTaskStreamingFallbackOnInconclusiveStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		require.NoError(t, readErr)

		if bytes.Contains(body, []byte(types.MethodTasksSendSubscribe)) {
			// stream breaks off after one interim event, no final, no [DONE]
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte(`data: {"jsonrpc":"2.0","id":"1","result":{"id":"cli-fallback","status":{"state":"working"},"final":false}}` + "\n\n"))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"id":"cli-fallback","status":{"state":"completed"}}}`))
	}))
	defer ts.Close()

	c := client.NewClient(ts.URL)
	task, err := c.SendTaskStreaming(context.Background(), taskParams("cli-fallback", "go"), nil)
	require.NoError(t, err)
	assert.Equal(t, "cli-fallback", task.ID)
	assert.Equal(t, types.TaskStateCompleted, task.Status.State)
}

func TestSendTaskStreamingUnroutable(t *testing.T) {
	srv, ts := newBackend(t)
	srv.Router().Register(types.AgentSkill{ID: "only", Name: "only"}, func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(nil), nil
	})

	c := client.NewClient(ts.URL)
	params := types.TaskSendParams{
		ID:      "cli-bad",
		Message: types.NewSkillMessage("missing", []types.Part{types.CreateTextPart("x")}),
	}

	_, err := c.SendTaskStreaming(context.Background(), params, nil)
	require.Error(t, err)
	var a2aErr *types.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, types.ErrCodeMethodNotFound, a2aErr.Code)
}

func TestGetAgentCardCached(t *testing.T) {
	srv, ts := newBackend(t)
	srv.Router().Register(types.AgentSkill{ID: "audit", Name: "Audit"}, func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(nil), nil
	})

	c := client.NewClient(ts.URL)
	ctx := context.Background()

	card, err := c.GetAgentCard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backend-agent", card.Name)
	require.Len(t, card.Skills, 1)

	again, err := c.GetAgentCard(ctx)
	require.NoError(t, err)
	assert.Same(t, card, again)
}

func TestGetHealth(t *testing.T) {
	_, ts := newBackend(t)

	c := client.NewClient(ts.URL)
	health, err := c.GetHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.HealthStatusHealthy, health.Status)
}

func TestGetHealthRejectsMissingStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := client.NewClient(ts.URL)
	_, err := c.GetHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing status")
}

func TestRetryOnConnectionFailure(t *testing.T) {
	var attempts int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"id":"retry-1","status":{"state":"completed"}}}`))
	}))
	defer ts.Close()

	cfg := client.DefaultConfig(ts.URL)
	cfg.RetryDelay = 5 * time.Millisecond
	c := client.NewClientWithConfig(cfg)

	task, err := c.SendTask(context.Background(), taskParams("retry-1", "x"))
	require.NoError(t, err)
	assert.Equal(t, "retry-1", task.ID)
	assert.Equal(t, 3, attempts)
}

func TestSharedCardCacheAcrossClients(t *testing.T) {
	_, ts := newBackend(t)

	cache := client.NewAgentCardCache()

	cfgA := client.DefaultConfig(ts.URL)
	cfgA.CardCache = cache
	a := client.NewClientWithConfig(cfgA)

	cfgB := client.DefaultConfig(ts.URL + "/")
	cfgB.CardCache = cache
	b := client.NewClientWithConfig(cfgB)

	cardA, err := a.GetAgentCard(context.Background())
	require.NoError(t, err)

	cardB, err := b.GetAgentCard(context.Background())
	require.NoError(t, err)
	assert.Same(t, cardA, cardB)
}

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apia-framework/a2a/types"
)

// A2AClient defines the interface for an A2A protocol client
type A2AClient interface {
	// Agent discovery
	GetAgentCard(ctx context.Context) (*types.AgentCard, error)
	GetHealth(ctx context.Context) (*HealthResponse, error)

	// Task operations
	SendTask(ctx context.Context, params types.TaskSendParams) (*types.Task, error)
	SendTaskStreaming(ctx context.Context, params types.TaskSendParams, events chan<- types.TaskUpdateEvent) (*types.Task, error)
	GetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error)
	CancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error)

	// Configuration
	SetTimeout(timeout time.Duration)
	SetHTTPClient(client *http.Client)
	GetBaseURL() string

	// Logger configuration
	SetLogger(logger *zap.Logger)
	GetLogger() *zap.Logger
}

var _ A2AClient = (*Client)(nil)

// HealthResponse represents the response from the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
}

// Config holds configuration options for the A2A client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Headers    map[string]string
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	CardCache  *AgentCardCache
}

// DefaultConfig returns a default configuration
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:    baseURL,
		Timeout:    30 * time.Second,
		UserAgent:  "A2A-Go-Client/1.0",
		Headers:    make(map[string]string),
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		Logger:     zap.NewNop(),
	}
}

// NormalizeBaseURL canonicalizes an agent base URL for cache keying: a bare
// host gets an http scheme and trailing slashes are stripped.
func NormalizeBaseURL(baseURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalized == "" {
		return normalized
	}
	if !strings.Contains(normalized, "://") {
		normalized = "http://" + normalized
	}
	return normalized
}

// AgentCardCache caches discovered agent cards keyed by normalized base URL.
// One cache may be shared across clients talking to different agents.
type AgentCardCache struct {
	mu    sync.RWMutex
	cards map[string]*types.AgentCard
}

// NewAgentCardCache creates an empty card cache
func NewAgentCardCache() *AgentCardCache {
	return &AgentCardCache{cards: make(map[string]*types.AgentCard)}
}

// Get returns the cached card for the base URL, if any
func (c *AgentCardCache) Get(baseURL string) (*types.AgentCard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[NormalizeBaseURL(baseURL)]
	return card, ok
}

// Put stores a card under the normalized base URL
func (c *AgentCardCache) Put(baseURL string, card *types.AgentCard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards[NormalizeBaseURL(baseURL)] = card
}

// Client represents an A2A protocol client
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	cardCache  *AgentCardCache
}

// NewClient creates a new A2A client with default configuration
func NewClient(baseURL string) A2AClient {
	config := DefaultConfig(baseURL)
	return NewClientWithConfig(config)
}

// NewClientWithLogger creates a new A2A client with the given logger
func NewClientWithLogger(baseURL string, logger *zap.Logger) A2AClient {
	config := DefaultConfig(baseURL)
	config.Logger = logger
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a new A2A client with custom configuration
func NewClientWithConfig(config *Config) A2AClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cardCache := config.CardCache
	if cardCache == nil {
		cardCache = NewAgentCardCache()
	}

	config.BaseURL = NormalizeBaseURL(config.BaseURL)

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		cardCache:  cardCache,
	}
}

// getA2AEndpointURL constructs the A2A endpoint URL by appending /a2a to the base URL
func (c *Client) getA2AEndpointURL() string {
	baseURL := c.config.BaseURL

	if strings.HasSuffix(baseURL, "/a2a") {
		return baseURL
	}
	return baseURL + "/a2a"
}

// SendTask sends a one-shot task and returns the terminal task. A task that
// failed in its handler is returned as data with state failed, not an error.
func (c *Client) SendTask(ctx context.Context, params types.TaskSendParams) (*types.Task, error) {
	c.logger.Debug("sending task",
		zap.String("method", types.MethodTasksSend),
		zap.String("task_id", params.ID))

	result, err := c.doRequestWithContext(ctx, types.MethodTasksSend, params)
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// GetTask retrieves the current state of a task
func (c *Client) GetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	c.logger.Debug("retrieving task",
		zap.String("method", types.MethodTasksGet),
		zap.String("task_id", params.ID))

	result, err := c.doRequestWithContext(ctx, types.MethodTasksGet, params)
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// CancelTask requests cancellation of a task
func (c *Client) CancelTask(ctx context.Context, params types.TaskIDParams) (*types.Task, error) {
	c.logger.Debug("canceling task",
		zap.String("method", types.MethodTasksCancel),
		zap.String("task_id", params.ID))

	result, err := c.doRequestWithContext(ctx, types.MethodTasksCancel, params)
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// SendTaskStreaming subscribes to a task and forwards every update event to
// the events channel. It returns the committed task once the stream ends;
// when the stream ends without a final event the task is fetched via
// tasks/get as a fallback.
func (c *Client) SendTaskStreaming(ctx context.Context, params types.TaskSendParams, events chan<- types.TaskUpdateEvent) (*types.Task, error) {
	c.logger.Debug("starting task streaming",
		zap.String("method", types.MethodTasksSendSubscribe),
		zap.String("task_id", params.ID))

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	body, err := json.Marshal(types.JSONRPCRequest{
		JSONRPC: types.JSONRPCVersion,
		Method:  types.MethodTasksSendSubscribe,
		Params:  rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.getA2AEndpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", httpResp.StatusCode)
	}

	// A subscription rejected before the stream starts comes back as a plain
	// JSON-RPC response instead of an event stream.
	if !strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		var rawResp struct {
			Error *types.JSONRPCError `json:"error,omitempty"`
		}
		if err := json.NewDecoder(httpResp.Body).Decode(&rawResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if rawResp.Error != nil {
			return nil, &types.A2AError{
				Code:    rawResp.Error.Code,
				Message: rawResp.Error.Message,
				Data:    rawResp.Error.Data,
			}
		}
		return nil, fmt.Errorf("expected event stream, got %q", httpResp.Header.Get("Content-Type"))
	}

	finalStatus, artifacts, err := c.consumeEventStream(ctx, httpResp.Body, events)
	if err != nil {
		return nil, err
	}

	if finalStatus == nil {
		c.logger.Warn("stream ended without final event, falling back to tasks/get",
			zap.String("task_id", params.ID))
		return c.GetTask(ctx, types.TaskQueryParams{ID: params.ID})
	}

	return &types.Task{
		ID:        params.ID,
		SessionID: params.SessionID,
		Status:    finalStatus.Status,
		Artifacts: artifacts,
		Metadata:  params.Metadata,
	}, nil
}

// consumeEventStream decodes SSE lines until [DONE], EOF or a terminal event,
// tracking the final status and streamed artifacts so the caller can
// reconstruct the task without a follow-up fetch. Malformed lines are logged
// and skipped rather than corrupting the stream.
func (c *Client) consumeEventStream(ctx context.Context, body io.Reader, events chan<- types.TaskUpdateEvent) (*types.TaskStatusUpdateEvent, []types.Artifact, error) {
	scanner := bufio.NewScanner(body)
	eventCount := 0

	var finalStatus *types.TaskStatusUpdateEvent
	var artifacts []types.Artifact

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return finalStatus, artifacts, ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		if strings.TrimSpace(line) == "data: [DONE]" {
			c.logger.Debug("received stream termination signal", zap.Int("events_received", eventCount))
			return finalStatus, artifacts, nil
		}

		jsonData := strings.TrimPrefix(line, "data: ")

		var envelope struct {
			Result json.RawMessage     `json:"result,omitempty"`
			Error  *types.JSONRPCError `json:"error,omitempty"`
		}
		if err := json.Unmarshal([]byte(jsonData), &envelope); err != nil {
			c.logger.Error("failed to decode stream line, skipping",
				zap.Error(err),
				zap.String("line", jsonData))
			continue
		}

		if envelope.Error != nil {
			return finalStatus, artifacts, &types.A2AError{
				Code:    envelope.Error.Code,
				Message: envelope.Error.Message,
				Data:    envelope.Error.Data,
			}
		}

		event, err := decodeUpdateEvent(envelope.Result)
		if err != nil {
			c.logger.Error("failed to decode update event, skipping", zap.Error(err))
			continue
		}

		eventCount++
		if events != nil {
			select {
			case events <- event:
			case <-ctx.Done():
				return finalStatus, artifacts, ctx.Err()
			}
		}

		switch e := event.(type) {
		case types.TaskStatusUpdateEvent:
			if e.Final {
				status := e
				finalStatus = &status
			}
		case types.TaskArtifactUpdateEvent:
			artifacts = append(artifacts, e.Artifact)
		}
	}

	if err := scanner.Err(); err != nil {
		return finalStatus, artifacts, fmt.Errorf("failed to scan response: %w", err)
	}
	return finalStatus, artifacts, nil
}

// decodeUpdateEvent distinguishes status and artifact update events by their
// payload shape
func decodeUpdateEvent(raw json.RawMessage) (types.TaskUpdateEvent, error) {
	var probe struct {
		Status   *json.RawMessage `json:"status"`
		Artifact *json.RawMessage `json:"artifact"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to probe update event: %w", err)
	}

	switch {
	case probe.Status != nil:
		var event types.TaskStatusUpdateEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("failed to decode status update event: %w", err)
		}
		return event, nil
	case probe.Artifact != nil:
		var event types.TaskArtifactUpdateEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("failed to decode artifact update event: %w", err)
		}
		return event, nil
	default:
		return nil, fmt.Errorf("update event carries neither status nor artifact")
	}
}

// GetAgentCard retrieves the agent's capability card, serving repeated calls
// from the discovery cache
func (c *Client) GetAgentCard(ctx context.Context) (*types.AgentCard, error) {
	if card, ok := c.cardCache.Get(c.config.BaseURL); ok {
		c.logger.Debug("agent card served from cache", zap.String("base_url", c.config.BaseURL))
		return card, nil
	}

	agentCardURL := c.config.BaseURL + "/.well-known/agent-card.json"
	c.logger.Debug("retrieving agent card", zap.String("url", agentCardURL))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", agentCardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent card request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent card request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close agent card response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status code for agent card: %d, body: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var agentCard types.AgentCard
	if err := json.NewDecoder(httpResp.Body).Decode(&agentCard); err != nil {
		return nil, fmt.Errorf("failed to decode agent card response: %w", err)
	}

	c.cardCache.Put(c.config.BaseURL, &agentCard)
	c.logger.Debug("agent card retrieved successfully",
		zap.String("name", agentCard.Name),
		zap.String("version", agentCard.Version))
	return &agentCard, nil
}

// GetHealth retrieves the health status of the agent via HTTP GET to /health
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	healthURL := c.config.BaseURL + "/health"
	c.logger.Debug("retrieving agent health", zap.String("url", healthURL))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", healthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close health response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status code for health check: %d, body: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&healthResp); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	if healthResp.Status == "" {
		return nil, fmt.Errorf("health response missing status field")
	}

	c.logger.Debug("health check completed", zap.String("status", healthResp.Status))
	return &healthResp, nil
}

// doRequestWithContext performs one JSON-RPC call with retries and returns
// the raw result payload. A JSON-RPC error response is surfaced as a typed
// *types.A2AError.
func (c *Client) doRequestWithContext(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	body, err := json.Marshal(types.JSONRPCRequest{
		JSONRPC: types.JSONRPCVersion,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var httpResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.config.MaxRetries+1))
		}

		httpReq, reqErr := http.NewRequestWithContext(ctx, "POST", c.getA2AEndpointURL(), bytes.NewReader(body))
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		c.setHeaders(httpReq)

		httpResp, err = c.httpClient.Do(httpReq)
		if err == nil {
			break
		}
		lastErr = err
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < c.config.MaxRetries {
			delay := c.config.RetryDelay * time.Duration(attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if httpResp == nil {
		return nil, fmt.Errorf("failed to send request after %d attempts: %w", c.config.MaxRetries+1, lastErr)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var rawResp struct {
		JSONRPC string              `json:"jsonrpc"`
		ID      any                 `json:"id,omitempty"`
		Result  json.RawMessage     `json:"result,omitempty"`
		Error   *types.JSONRPCError `json:"error,omitempty"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if rawResp.Error != nil {
		c.logger.Error("received A2A error response",
			zap.String("error_message", rawResp.Error.Message),
			zap.Int("error_code", rawResp.Error.Code))
		return nil, &types.A2AError{
			Code:    rawResp.Error.Code,
			Message: rawResp.Error.Message,
			Data:    rawResp.Error.Data,
		}
	}

	return rawResp.Result, nil
}

// setHeaders sets the common headers for HTTP requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
}

// SetHTTPClient allows customizing the HTTP client
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetTimeout updates the HTTP client timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.config.Timeout = timeout
	c.httpClient.Timeout = timeout
}

// GetBaseURL returns the configured base URL
func (c *Client) GetBaseURL() string {
	return c.config.BaseURL
}

// SetLogger replaces the client logger
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// GetLogger returns the client logger
func (c *Client) GetLogger() *zap.Logger {
	return c.logger
}

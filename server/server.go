package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	gin "github.com/gin-gonic/gin"
	uuid "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zap "go.uber.org/zap"

	config "github.com/apia-framework/a2a/server/config"
	middlewares "github.com/apia-framework/a2a/server/middlewares"
	otel "github.com/apia-framework/a2a/server/otel"
	types "github.com/apia-framework/a2a/types"
)

// AgentCardPath is the well-known discovery path for the agent card
const AgentCardPath = "/.well-known/agent-card.json"

// A2AServer serves the A2A JSON-RPC protocol for one agent
type A2AServer interface {
	// Start starts the HTTP server and blocks until it stops
	Start(ctx context.Context) error

	// Stop gracefully stops the server
	Stop(ctx context.Context) error

	// Router returns the skill router for handler registration
	Router() *TaskRouter

	// TaskManager returns the task manager
	TaskManager() TaskManager

	// GetAgentCard returns the served agent card
	GetAgentCard() *types.AgentCard
}

// A2AServerImpl implements the A2AServer interface
type A2AServerImpl struct {
	cfg            *config.Config
	logger         *zap.Logger
	otel           otel.OpenTelemetry
	router         *TaskRouter
	taskManager    *DefaultTaskManager
	knowledge      KnowledgeBase
	responseSender ResponseSender

	customAgentCard *types.AgentCard
	httpServer      *http.Server
	metricsServer   *http.Server
}

var _ A2AServer = (*A2AServerImpl)(nil)

// NewA2AServer creates a new A2A server with the given dependencies
func NewA2AServer(cfg *config.Config, logger *zap.Logger, telemetry otel.OpenTelemetry, knowledge KnowledgeBase) *A2AServerImpl {
	router := NewTaskRouter(logger)
	taskManager := NewDefaultTaskManager(logger, router, knowledge, cfg.QueueConfig)
	if telemetry != nil {
		taskManager.SetTelemetry(telemetry)
	}

	s := &A2AServerImpl{
		cfg:            cfg,
		logger:         logger,
		otel:           telemetry,
		router:         router,
		taskManager:    taskManager,
		knowledge:      knowledge,
		responseSender: NewDefaultResponseSender(logger),
	}

	if cfg.CapabilitiesConfig.PushNotifications && cfg.NotificationsConfig.WebhookURL != "" {
		sender, err := NewCloudEventsPushNotificationSender(cfg.AgentName, cfg.NotificationsConfig, logger)
		if err != nil {
			logger.Error("failed to create push notification sender", zap.Error(err))
		} else {
			taskManager.SetNotificationSender(sender)
		}
	}

	return s
}

// NewDefaultA2AServer creates a server with an in-memory knowledge base and
// no telemetry, for embedding and tests
func NewDefaultA2AServer(cfg *config.Config, logger *zap.Logger) *A2AServerImpl {
	return NewA2AServer(cfg, logger, nil, NewInMemoryKnowledgeBase(logger))
}

// Router returns the skill router for handler registration
func (s *A2AServerImpl) Router() *TaskRouter {
	return s.router
}

// TaskManager returns the task manager
func (s *A2AServerImpl) TaskManager() TaskManager {
	return s.taskManager
}

// SetAgentCard overrides the card assembled from configuration
func (s *A2AServerImpl) SetAgentCard(agentCard types.AgentCard) {
	s.customAgentCard = &agentCard
}

// GetAgentCard returns the served agent card
func (s *A2AServerImpl) GetAgentCard() *types.AgentCard {
	if s.customAgentCard != nil {
		return s.customAgentCard
	}
	card := s.buildAgentCard()
	return &card
}

// buildAgentCard assembles the card from configuration and registered skills
func (s *A2AServerImpl) buildAgentCard() types.AgentCard {
	return types.AgentCard{
		Name:        s.cfg.AgentName,
		Description: s.cfg.AgentDescription,
		URL:         s.cfg.AgentURL,
		Version:     s.cfg.AgentVersion,
		Capabilities: types.AgentCapabilities{
			Streaming:              s.cfg.CapabilitiesConfig.Streaming,
			PushNotifications:      s.cfg.CapabilitiesConfig.PushNotifications,
			StateTransitionHistory: s.cfg.CapabilitiesConfig.StateTransitionHistory,
		},
		Authentication:     types.AgentAuthentication{Schemes: []string{"none"}},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             s.router.Skills(),
	}
}

func (s *A2AServerImpl) setupRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.LoggingMiddleware(cfg.ServerConfig.DisableHealthcheckLog))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": types.HealthStatusHealthy})
	})

	r.GET(AgentCardPath, s.handleAgentInfo)
	r.GET("/agents", s.handleAgentsList)

	var telemetryMiddleware gin.HandlerFunc
	if s.cfg.TelemetryConfig.Enable && s.otel != nil {
		telemetryMw, err := middlewares.NewTelemetryMiddleware(*s.cfg, s.otel, s.logger)
		if err != nil {
			s.logger.Error("failed to create telemetry middleware", zap.Error(err))
		} else {
			telemetryMiddleware = telemetryMw.Middleware()
		}
	}

	if telemetryMiddleware != nil {
		r.POST("/a2a", telemetryMiddleware, s.handleA2ARequest)
	} else {
		r.POST("/a2a", s.handleA2ARequest)
	}

	return r
}

// Handler returns the HTTP handler serving the A2A routes, for embedding in
// an existing server or test harness
func (s *A2AServerImpl) Handler() http.Handler {
	return s.setupRouter(s.cfg)
}

// Start starts the A2A server and blocks until it stops
func (s *A2AServerImpl) Start(ctx context.Context) error {
	router := s.setupRouter(s.cfg)

	if s.knowledge != nil {
		if err := s.knowledge.SetValue(ctx, "skill_blueprints", s.router.Skills()); err != nil {
			s.logger.Warn("failed to publish skill blueprints", zap.Error(err))
		}
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.ServerConfig.Host, s.cfg.ServerConfig.Port),
		Handler:      router,
		ReadTimeout:  s.cfg.ServerConfig.ReadTimeout,
		WriteTimeout: s.cfg.ServerConfig.WriteTimeout,
		IdleTimeout:  s.cfg.ServerConfig.IdleTimeout,
	}

	s.logger.Info("starting A2A server",
		zap.String("port", s.cfg.ServerConfig.Port),
		zap.String("agent_name", s.cfg.AgentName),
		zap.String("agent_version", s.cfg.AgentVersion),
		zap.Int("skills", len(s.router.Skills())))

	if s.cfg.TelemetryConfig.Enable && s.otel != nil {
		go func() {
			metricsRouter := gin.New()
			metricsRouter.Use(gin.Recovery())
			metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

			metricsAddr := s.cfg.TelemetryConfig.MetricsConfig.Host + ":" + s.cfg.TelemetryConfig.MetricsConfig.Port
			s.metricsServer = &http.Server{
				Addr:         metricsAddr,
				Handler:      metricsRouter,
				ReadTimeout:  s.cfg.TelemetryConfig.MetricsConfig.ReadTimeout,
				WriteTimeout: s.cfg.TelemetryConfig.MetricsConfig.WriteTimeout,
				IdleTimeout:  s.cfg.TelemetryConfig.MetricsConfig.IdleTimeout,
			}

			s.logger.Info("starting metrics server", zap.String("port", s.cfg.TelemetryConfig.MetricsConfig.Port))
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the A2A server
func (s *A2AServerImpl) Stop(ctx context.Context) error {
	s.logger.Info("stopping A2A server")

	var err error

	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("error stopping HTTP server", zap.Error(shutdownErr))
			err = shutdownErr
		}
	}

	if s.metricsServer != nil {
		if shutdownErr := s.metricsServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("error stopping metrics server", zap.Error(shutdownErr))
			if err == nil {
				err = shutdownErr
			}
		}
	}

	if s.otel != nil {
		if shutdownErr := s.otel.ShutDown(ctx); shutdownErr != nil {
			s.logger.Error("error shutting down telemetry", zap.Error(shutdownErr))
			if err == nil {
				err = shutdownErr
			}
		}
	}

	if s.knowledge != nil {
		if closeErr := s.knowledge.Close(); closeErr != nil {
			s.logger.Error("error closing knowledge base", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}

	return err
}

func (s *A2AServerImpl) handleAgentInfo(c *gin.Context) {
	s.logger.Debug("agent card requested")
	c.JSON(http.StatusOK, *s.GetAgentCard())
}

func (s *A2AServerImpl) handleAgentsList(c *gin.Context) {
	c.JSON(http.StatusOK, []types.AgentCard{*s.GetAgentCard()})
}

// handleA2ARequest processes A2A protocol requests
func (s *A2AServerImpl) handleA2ARequest(c *gin.Context) {
	var req types.JSONRPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("failed to parse json request", zap.Error(err))
		s.responseSender.SendError(c, req.ID, types.ErrCodeParseError, "parse error")
		return
	}

	if req.JSONRPC == "" {
		req.JSONRPC = types.JSONRPCVersion
	}
	if req.ID == nil {
		req.ID = uuid.New().String()
	}

	s.logger.Info("received a2a request",
		zap.String("method", req.Method),
		zap.Any("id", req.ID))

	switch req.Method {
	case types.MethodTasksSend:
		s.handleTaskSend(c, req)
	case types.MethodTasksSendSubscribe:
		s.handleTaskSendSubscribe(c, req)
	case types.MethodTasksGet:
		s.handleTaskGet(c, req)
	case types.MethodTasksCancel:
		s.handleTaskCancel(c, req)
	default:
		s.logger.Warn("unknown method requested", zap.String("method", req.Method))
		s.responseSender.SendError(c, req.ID, types.ErrCodeMethodNotFound, "method not found")
	}
}

func (s *A2AServerImpl) handleTaskSend(c *gin.Context, req types.JSONRPCRequest) {
	var params types.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.responseSender.SendA2AError(c, req.ID, types.NewInvalidParamsError(err.Error()))
		return
	}

	task, err := s.taskManager.OnSendTask(c.Request.Context(), params)
	if err != nil {
		s.sendTaskError(c, req.ID, err)
		return
	}
	s.responseSender.SendSuccess(c, req.ID, task)
}

func (s *A2AServerImpl) handleTaskSendSubscribe(c *gin.Context, req types.JSONRPCRequest) {
	if !s.cfg.CapabilitiesConfig.Streaming {
		s.responseSender.SendError(c, req.ID, types.ErrCodeMethodNotFound, "streaming is not supported by this agent")
		return
	}

	var params types.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.responseSender.SendA2AError(c, req.ID, types.NewInvalidParamsError(err.Error()))
		return
	}

	subscription, err := s.taskManager.OnSendTaskSubscribe(c.Request.Context(), params)
	if err != nil {
		s.sendTaskError(c, req.ID, err)
		return
	}
	defer subscription.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("streaming client disconnected", zap.String("task_id", subscription.TaskID()))
			return
		case event, ok := <-subscription.Events():
			if !ok {
				s.writeStreamDone(c)
				return
			}

			if event.Err != nil {
				response := types.JSONRPCErrorResponse{
					JSONRPC: types.JSONRPCVersion,
					ID:      req.ID,
					Error:   event.Err.JSONRPCError(),
				}
				if err := s.writeStreamingEvent(c, response); err != nil {
					s.logger.Error("failed to write streaming error", zap.Error(err))
				}
				s.writeStreamDone(c)
				return
			}

			response := types.NewSuccessResponse(req.ID, event.Event)
			if err := s.writeStreamingEvent(c, response); err != nil {
				s.logger.Error("failed to write streaming event", zap.Error(err))
				return
			}

			if event.Terminal() {
				s.writeStreamDone(c)
				return
			}
		}
	}
}

func (s *A2AServerImpl) handleTaskGet(c *gin.Context, req types.JSONRPCRequest) {
	var params types.TaskQueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.responseSender.SendA2AError(c, req.ID, types.NewInvalidParamsError(err.Error()))
		return
	}

	task, err := s.taskManager.OnGetTask(c.Request.Context(), params)
	if err != nil {
		s.sendTaskError(c, req.ID, err)
		return
	}
	s.responseSender.SendSuccess(c, req.ID, task)
}

func (s *A2AServerImpl) handleTaskCancel(c *gin.Context, req types.JSONRPCRequest) {
	var params types.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.responseSender.SendA2AError(c, req.ID, types.NewInvalidParamsError(err.Error()))
		return
	}

	task, err := s.taskManager.OnCancelTask(c.Request.Context(), params)
	if err != nil {
		s.sendTaskError(c, req.ID, err)
		return
	}
	s.responseSender.SendSuccess(c, req.ID, task)
}

// sendTaskError maps manager errors onto JSON-RPC error responses
func (s *A2AServerImpl) sendTaskError(c *gin.Context, id any, err error) {
	if a2aErr, ok := err.(*types.A2AError); ok {
		s.responseSender.SendA2AError(c, id, a2aErr)
		return
	}
	s.responseSender.SendError(c, id, types.ErrCodeInternalError, err.Error())
}

// writeStreamingEvent writes one JSON-RPC envelope in SSE format
func (s *A2AServerImpl) writeStreamingEvent(c *gin.Context, response any) error {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if _, err := c.Writer.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write data prefix: %w", err)
	}

	if _, err := c.Writer.Write(responseBytes); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE terminator: %w", err)
	}

	c.Writer.Flush()
	return nil
}

// writeStreamDone signals the end of the event stream
func (s *A2AServerImpl) writeStreamDone(c *gin.Context) {
	if _, err := c.Writer.Write([]byte("data: [DONE]\n\n")); err != nil {
		s.logger.Error("failed to write stream termination", zap.Error(err))
		return
	}
	c.Writer.Flush()
}

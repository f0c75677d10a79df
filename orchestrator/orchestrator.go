package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	zap "go.uber.org/zap"

	client "github.com/apia-framework/a2a/client"
	server "github.com/apia-framework/a2a/server"
	types "github.com/apia-framework/a2a/types"
)

const agentHealthCategory = "agent_health"

// AgentEndpoint names one agent under supervision
type AgentEndpoint struct {
	Name string
	URL  string
}

// InitialTask describes the one-time task submitted after the startup delay
type InitialTask struct {
	AgentName string
	SkillID   string
	Text      string
}

// Config holds orchestrator settings
type Config struct {
	Agents       []AgentEndpoint
	PollInterval time.Duration
	StartupDelay time.Duration
	InitialTask  *InitialTask
}

// Orchestrator periodically polls agent health, records it in the knowledge
// base, and logs a task-metrics summary. It optionally submits a single
// bootstrap task once the fleet has had time to come up.
type Orchestrator struct {
	logger    *zap.Logger
	cfg       Config
	knowledge server.KnowledgeBase
	clients   map[string]client.A2AClient
}

// New creates an orchestrator over the configured agents. All clients share
// one discovery cache.
func New(cfg Config, knowledge server.KnowledgeBase, logger *zap.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cardCache := client.NewAgentCardCache()
	clients := make(map[string]client.A2AClient, len(cfg.Agents))
	for _, agent := range cfg.Agents {
		clientConfig := client.DefaultConfig(agent.URL)
		clientConfig.Logger = logger.Named("client").With(zap.String("agent", agent.Name))
		clientConfig.CardCache = cardCache
		clients[agent.Name] = client.NewClientWithConfig(clientConfig)
	}

	return &Orchestrator{
		logger:    logger,
		cfg:       cfg,
		knowledge: knowledge,
		clients:   clients,
	}
}

// Run blocks until ctx is canceled, polling every PollInterval. The initial
// task, if configured, is submitted once after StartupDelay.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		zap.Int("agents", len(o.cfg.Agents)),
		zap.Duration("poll_interval", o.cfg.PollInterval))

	if o.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.StartupDelay):
		}
	}

	if o.cfg.InitialTask != nil {
		o.submitInitialTask(ctx)
	}

	o.pollOnce(ctx)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping")
			return ctx.Err()
		case <-ticker.C:
			o.pollOnce(ctx)
		}
	}
}

func (o *Orchestrator) submitInitialTask(ctx context.Context) {
	task := o.cfg.InitialTask
	agentClient, ok := o.clients[task.AgentName]
	if !ok {
		o.logger.Error("initial task targets unknown agent", zap.String("agent", task.AgentName))
		return
	}

	params := types.TaskSendParams{
		ID:      uuid.NewString(),
		Message: types.NewSkillMessage(task.SkillID, []types.Part{types.CreateTextPart(task.Text)}),
	}

	result, err := agentClient.SendTask(ctx, params)
	if err != nil {
		o.logger.Error("initial task submission failed",
			zap.String("agent", task.AgentName),
			zap.String("skill", task.SkillID),
			zap.Error(err))
		return
	}

	o.logger.Info("initial task submitted",
		zap.String("agent", task.AgentName),
		zap.String("skill", task.SkillID),
		zap.String("task_id", result.ID),
		zap.String("state", result.Status.State.String()))
}

func (o *Orchestrator) pollOnce(ctx context.Context) {
	for _, agent := range o.cfg.Agents {
		o.checkAgent(ctx, agent)
	}
	o.logTaskMetrics(ctx)
}

func (o *Orchestrator) checkAgent(ctx context.Context, agent AgentEndpoint) {
	agentClient, ok := o.clients[agent.Name]
	if !ok {
		return
	}

	healthy := 0.0
	health, err := agentClient.GetHealth(ctx)
	if err != nil {
		o.logger.Warn("agent health check failed",
			zap.String("agent", agent.Name),
			zap.String("url", agent.URL),
			zap.Error(err))
	} else {
		if health.Status == types.HealthStatusHealthy {
			healthy = 1.0
		}
		o.logger.Debug("agent health",
			zap.String("agent", agent.Name),
			zap.String("status", health.Status))
	}

	if err := o.knowledge.UpdateMetric(ctx, agentHealthCategory, agent.Name, healthy); err != nil {
		o.logger.Warn("failed to record agent health",
			zap.String("agent", agent.Name),
			zap.Error(err))
	}
}

func (o *Orchestrator) logTaskMetrics(ctx context.Context) {
	metrics, err := o.knowledge.GetCategory(ctx, "a2a_tasks")
	if err != nil {
		o.logger.Warn("failed to read task metrics", zap.Error(err))
		return
	}

	healthByAgent, err := o.knowledge.GetCategory(ctx, agentHealthCategory)
	if err != nil {
		o.logger.Warn("failed to read agent health metrics", zap.Error(err))
		return
	}

	healthyCount := 0
	for _, v := range healthByAgent {
		if v >= 1 {
			healthyCount++
		}
	}

	o.logger.Info("fleet status",
		zap.Int("agents_healthy", healthyCount),
		zap.Int("agents_total", len(o.cfg.Agents)),
		zap.Float64("tasks_received", metrics["received"]),
		zap.Float64("tasks_completed", metrics["completed"]),
		zap.Float64("tasks_failed", metrics["failed"]),
		zap.Float64("tasks_canceled", metrics["canceled"]),
		zap.Float64("dead_letters", metrics["dlq_count"]))
}

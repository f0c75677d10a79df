package server

import (
	"sync"

	types "github.com/apia-framework/a2a/types"
	zap "go.uber.org/zap"
)

// TaskHandler processes one inbound task message. It receives a snapshot view
// of the task and returns the resulting status and artifacts. A returned error
// or a panic marks the task failed and dead-letters the request.
type TaskHandler func(ctx *TaskContext) (*TaskResult, error)

// TaskRouter maps skill ids to handlers. A default handler, when set, serves
// every message that names no skill or an unregistered one.
type TaskRouter struct {
	logger         *zap.Logger
	mu             sync.RWMutex
	handlers       map[string]TaskHandler
	skills         map[string]types.AgentSkill
	defaultHandler TaskHandler
}

// NewTaskRouter creates a new task router
func NewTaskRouter(logger *zap.Logger) *TaskRouter {
	return &TaskRouter{
		logger:   logger,
		handlers: make(map[string]TaskHandler),
		skills:   make(map[string]types.AgentSkill),
	}
}

// Register binds a handler to a skill. A nil handler is logged and ignored;
// re-registering a skill replaces the previous handler.
func (r *TaskRouter) Register(skill types.AgentSkill, handler TaskHandler) {
	if handler == nil {
		r.logger.Warn("ignoring nil handler registration", zap.String("skill_id", skill.ID))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[skill.ID]; exists {
		r.logger.Info("replacing handler registration", zap.String("skill_id", skill.ID))
	}
	r.handlers[skill.ID] = handler
	r.skills[skill.ID] = skill

	r.logger.Debug("registered skill handler", zap.String("skill_id", skill.ID))
}

// RegisterDefault binds the fallback handler. A nil handler is logged and
// ignored.
func (r *TaskRouter) RegisterDefault(handler TaskHandler) {
	if handler == nil {
		r.logger.Warn("ignoring nil default handler registration")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultHandler = handler
	r.logger.Debug("registered default handler")
}

// Resolve returns the handler for the given skill id, falling back to the
// default handler. The second return is false when the request is unroutable.
func (r *TaskRouter) Resolve(skillID string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if handler, ok := r.handlers[skillID]; ok {
		return handler, true
	}
	if r.defaultHandler != nil {
		return r.defaultHandler, true
	}
	return nil, false
}

// Skills returns the registered skill declarations for agent card assembly
func (r *TaskRouter) Skills() []types.AgentSkill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skills := make([]types.AgentSkill, 0, len(r.skills))
	for _, skill := range r.skills {
		skills = append(skills, skill)
	}
	return skills
}

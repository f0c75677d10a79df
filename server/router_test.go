package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/apia-framework/a2a/server"
	types "github.com/apia-framework/a2a/types"
)

func TestRouterResolve(t *testing.T) {
	router := server.NewTaskRouter(zap.NewNop())

	specific := func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(types.NewAgentTextMessage("specific")), nil
	}
	fallback := func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(types.NewAgentTextMessage("fallback")), nil
	}

	// nothing registered: unroutable
	_, ok := router.Resolve("anything")
	assert.False(t, ok)

	router.Register(echoSkill("known"), specific)

	handler, ok := router.Resolve("known")
	require.True(t, ok)
	result, err := handler(nil)
	require.NoError(t, err)
	assert.Equal(t, "specific", result.Status.Message.TextParts()[0])

	// unknown skill without default is still unroutable
	_, ok = router.Resolve("unknown")
	assert.False(t, ok)

	router.RegisterDefault(fallback)

	handler, ok = router.Resolve("unknown")
	require.True(t, ok)
	result, err = handler(nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Status.Message.TextParts()[0])

	// empty skill id routes to the default as well
	_, ok = router.Resolve("")
	assert.True(t, ok)
}

func TestRouterNilHandlerIgnored(t *testing.T) {
	router := server.NewTaskRouter(zap.NewNop())

	router.Register(echoSkill("skill"), nil)
	router.RegisterDefault(nil)

	_, ok := router.Resolve("skill")
	assert.False(t, ok)
	assert.Empty(t, router.Skills())
}

func TestRouterSkills(t *testing.T) {
	router := server.NewTaskRouter(zap.NewNop())
	handler := func(tc *server.TaskContext) (*server.TaskResult, error) {
		return server.NewCompletedResult(nil), nil
	}

	router.Register(echoSkill("a"), handler)
	router.Register(echoSkill("b"), handler)
	router.RegisterDefault(handler)

	skills := router.Skills()
	assert.Len(t, skills, 2)

	ids := map[string]bool{}
	for _, skill := range skills {
		ids[skill.ID] = true
	}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
}

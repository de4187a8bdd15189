package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	name     string
	priority int
	order    *[]string
}

func (m stubModule) Name() string  { return m.name }
func (m stubModule) Priority() int { return m.priority }
func (m stubModule) Init(ctx *ModuleContext) error {
	*m.order = append(*m.order, m.name)
	return nil
}

func TestInitModulesOrder(t *testing.T) {
	saved := moduleRegistry
	moduleRegistry = make(map[string]Module)
	defer func() { moduleRegistry = saved }()

	var order []string
	Register(stubModule{name: "order", priority: 20, order: &order})
	Register(stubModule{name: "user", priority: 10, order: &order})
	Register(stubModule{name: "audit", priority: 20, order: &order})

	require.NoError(t, InitModules(&ModuleContext{}))
	assert.Equal(t, []string{"user", "audit", "order"}, order)
}

func TestShutdownHooks(t *testing.T) {
	ctx := &ModuleContext{}
	var calls []int
	ctx.OnShutdown(func(context.Context) error { calls = append(calls, 1); return nil })
	ctx.OnShutdown(func(context.Context) error { calls = append(calls, 2); return errors.New("boom") })
	ctx.OnShutdown(func(context.Context) error { calls = append(calls, 3); return nil })

	err := ctx.Shutdown(context.Background())
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []int{3, 2, 1}, calls)

	// 钩子只执行一次
	assert.NoError(t, ctx.Shutdown(context.Background()))
	assert.Len(t, calls, 3)
}

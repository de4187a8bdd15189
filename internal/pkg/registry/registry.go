package registry

import (
	"context"
	"sort"
	"sync"

	"rakhi_store/internal/pkg/config"
	"rakhi_store/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ShutdownFunc 服务退出时调用，用于停止后台 worker
type ShutdownFunc func(ctx context.Context) error

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB      *gorm.DB
	Redis   *redis.Client // 可为 nil
	Router  *gin.Engine
	Config  *config.Config
	Metrics *metrics.MetricsCollector

	mu       sync.Mutex
	shutdown []ShutdownFunc
}

// OnShutdown 注册退出钩子
func (c *ModuleContext) OnShutdown(fn ShutdownFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = append(c.shutdown, fn)
}

// Shutdown 按注册的逆序执行退出钩子，返回第一个错误
func (c *ModuleContext) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	hooks := c.shutdown
	c.shutdown = nil
	c.mu.Unlock()

	var first error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块，优先级相同时按名称
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})

	// 按顺序初始化
	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TriggerEvent 插件触发事件类型（对外导出）
type TriggerEvent string

const (
	// Workflow事件
	EventWorkflowStarted           TriggerEvent = "workflow.started"            // 实例创建
	EventReviewPending             TriggerEvent = "review.pending"              // 等待人工审核
	EventWorkflowResumed           TriggerEvent = "workflow.resumed"            // 审核结果已提交
	EventWorkflowPublished         TriggerEvent = "workflow.published"          // 发布完成
	EventWorkflowBlocked           TriggerEvent = "workflow.blocked"            // 选题合规拦截
	EventWorkflowRejected          TriggerEvent = "workflow.rejected"           // 人工拒绝
	EventWorkflowRevisionExhausted TriggerEvent = "workflow.revision_exhausted" // 修改次数耗尽
	EventWorkflowFailed            TriggerEvent = "workflow.failed"             // 执行失败

	// Step事件
	EventStepFailed TriggerEvent = "step.failed" // 步骤执行失败
)

// LifecycleEvents 所有工作流生命周期事件
func LifecycleEvents() []TriggerEvent {
	return []TriggerEvent{
		EventWorkflowStarted,
		EventReviewPending,
		EventWorkflowResumed,
		EventWorkflowPublished,
		EventWorkflowBlocked,
		EventWorkflowRejected,
		EventWorkflowRevisionExhausted,
		EventWorkflowFailed,
	}
}

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string                     // 插件名称
	Event      TriggerEvent               // 触发事件
	Condition  func(data PluginData) bool // 可选：条件函数，满足条件才触发
}

// PluginData 传递给插件的数据（对外导出）
type PluginData struct {
	Event      TriggerEvent           `json:"event"`
	WorkflowID string                 `json:"workflow_id"`
	UserID     string                 `json:"user_id,omitempty"`
	Step       string                 `json:"step,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"` // 自定义数据
	Timestamp  time.Time              `json:"timestamp"`
}

// PluginManager 插件管理器接口（对外导出）
type PluginManager interface {
	// Register 注册插件
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化插件
	RegisterWithInit(plugin Plugin, params map[string]string) error
	// Bind 绑定插件到事件
	Bind(binding PluginBinding) error
	// BindEvents 将插件绑定到多个事件
	BindEvents(pluginName string, events ...TriggerEvent) error
	// Trigger 触发插件
	Trigger(ctx context.Context, event TriggerEvent, data PluginData) error
	// GetPlugin 获取已注册的插件
	GetPlugin(name string) (Plugin, bool)
	// ListPlugins 列出所有已注册的插件
	ListPlugins() []string
	// Unregister 取消注册插件
	Unregister(name string) error
}

// pluginManagerImpl 插件管理器实现（内部实现）
type pluginManagerImpl struct {
	plugins  map[string]Plugin                // 已注册的插件（插件名称 -> 插件实例）
	bindings map[TriggerEvent][]PluginBinding // 事件绑定（事件类型 -> 绑定列表）
	mu       sync.RWMutex                     // 读写锁
}

// NewPluginManager 创建插件管理器（对外导出）
func NewPluginManager() PluginManager {
	return &pluginManagerImpl{
		plugins:  make(map[string]Plugin),
		bindings: make(map[TriggerEvent][]PluginBinding),
	}
}

// Register 注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}

	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}

	pm.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件（实现PluginManager接口）
func (pm *pluginManagerImpl) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := pm.Register(plugin); err != nil {
		return err
	}

	// 初始化插件
	if err := plugin.Init(params); err != nil {
		// 初始化失败，移除已注册的插件
		pm.mu.Lock()
		delete(pm.plugins, plugin.Name())
		pm.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}

	return nil
}

// Bind 绑定插件到事件（实现PluginManager接口）
func (pm *pluginManagerImpl) Bind(binding PluginBinding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	if binding.Event == "" {
		return fmt.Errorf("触发事件不能为空")
	}

	pm.mu.RLock()
	_, exists := pm.plugins[binding.PluginName]
	pm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.bindings[binding.Event] = append(pm.bindings[binding.Event], binding)
	return nil
}

// BindEvents 将插件绑定到多个事件（实现PluginManager接口）
func (pm *pluginManagerImpl) BindEvents(pluginName string, events ...TriggerEvent) error {
	for _, event := range events {
		if err := pm.Bind(PluginBinding{PluginName: pluginName, Event: event}); err != nil {
			return err
		}
	}
	return nil
}

// Trigger 触发插件（实现PluginManager接口）
// 单个插件失败不影响其他插件，错误合并返回
func (pm *pluginManagerImpl) Trigger(ctx context.Context, event TriggerEvent, data PluginData) error {
	pm.mu.RLock()
	bindings := append([]PluginBinding(nil), pm.bindings[event]...)
	pm.mu.RUnlock()

	if len(bindings) == 0 {
		return nil // 没有绑定，直接返回
	}

	data.Event = event
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now()
	}

	var errs []error
	for _, binding := range bindings {
		if binding.Condition != nil && !binding.Condition(data) {
			continue
		}

		pm.mu.RLock()
		p, exists := pm.plugins[binding.PluginName]
		pm.mu.RUnlock()
		if !exists {
			continue // 插件不存在，跳过
		}

		if err := p.Execute(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", binding.PluginName, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("触发插件失败: %w", errors.Join(errs...))
	}
	return nil
}

// GetPlugin 获取已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) GetPlugin(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件（实现PluginManager接口）
func (pm *pluginManagerImpl) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 取消注册插件（实现PluginManager接口）
func (pm *pluginManagerImpl) Unregister(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}

	delete(pm.plugins, name)

	// 移除所有相关的绑定
	for event := range pm.bindings {
		filtered := make([]PluginBinding, 0)
		for _, binding := range pm.bindings[event] {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		pm.bindings[event] = filtered
	}

	return nil
}

// Package plugin 提供通知插件：工作流生命周期事件和审核提醒通过插件管理器分发
package plugin

import "context"

// Plugin 插件接口（对外导出）
type Plugin interface {
	// Name 插件名称
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Execute 执行插件逻辑
	Execute(ctx context.Context, data PluginData) error
}

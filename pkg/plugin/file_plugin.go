package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// FilePlugin 本地文件通知插件（对外导出）
// 每个事件写一个JSON文件: {event_type, timestamp, payload}
type FilePlugin struct {
	name    string
	dir     string
	enabled bool
}

// NewFilePlugin 创建文件通知插件（对外导出）
// 参数: dir
func NewFilePlugin() Plugin {
	return &FilePlugin{name: "file"}
}

// Name 插件名称（实现Plugin接口）
func (f *FilePlugin) Name() string {
	return f.name
}

// Init 初始化插件（实现Plugin接口）
func (f *FilePlugin) Init(params map[string]string) error {
	f.dir = params["dir"]
	if f.dir == "" {
		return fmt.Errorf("dir参数不能为空")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("创建通知目录失败: %w", err)
	}
	f.enabled = true
	log.Printf("✅ [FilePlugin] 初始化完成: Dir=%s", f.dir)
	return nil
}

type fileNotification struct {
	EventType TriggerEvent `json:"event_type"`
	Timestamp string       `json:"timestamp"`
	Payload   PluginData   `json:"payload"`
}

// Execute 写入通知文件（实现Plugin接口）
func (f *FilePlugin) Execute(ctx context.Context, data PluginData) error {
	if !f.enabled {
		return fmt.Errorf("文件插件未初始化")
	}

	content, err := json.MarshalIndent(fileNotification{
		EventType: data.Event,
		Timestamp: data.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		Payload:   data,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.json",
		data.Timestamp.Format("20060102_150405.000000"),
		strings.ReplaceAll(string(data.Event), ".", "_"),
		data.WorkflowID)
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("写入通知文件失败: %w", err)
	}

	log.Printf("✅ [FilePlugin] 通知已写入: %s", path)
	return nil
}

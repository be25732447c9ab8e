package handler

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/content-pipeline/pkg/core/realtime"
)

const (
	streamWriteWait    = 10 * time.Second
	streamPingInterval = 30 * time.Second
	backpressureRatio  = 0.8
	defaultBufferSize  = 256
)

// StreamHandler 工作流事件的WebSocket推送
type StreamHandler struct {
	pipeline   Pipeline
	bufferSize int
	upgrader   websocket.Upgrader
}

// NewStreamHandler 创建StreamHandler；bufferSize 为每个连接的事件缓冲容量
func NewStreamHandler(p Pipeline, bufferSize int) *StreamHandler {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &StreamHandler{
		pipeline:   p,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Stream 推送事件，可按 workflow_id 过滤
// GET /api/v1/events
func (h *StreamHandler) Stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.pipeline.Events(ctx)
	if err != nil {
		abortWithError(c, "订阅事件失败", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ [Stream] WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	filter := c.Query("workflow_id")
	remote := conn.RemoteAddr().String()
	log.Printf("🔌 [Stream] 客户端已连接: Remote=%s, Filter=%q", remote, filter)

	var overloaded atomic.Bool
	buf := realtime.NewDataBuffer[*realtime.WorkflowEvent](h.bufferSize, backpressureRatio)
	buf.SetBackpressureCallback(func(usage float64) {
		overloaded.Store(true)
		log.Printf("⚠️ [Stream] 客户端消费过慢: Remote=%s, Usage=%.0f%%", remote, usage*100)
	})

	// 读循环只用于感知客户端断开
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Time{})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cancel()
		for ev := range events {
			if filter != "" && ev.WorkflowID != filter {
				continue
			}
			if !buf.Push(ev) {
				log.Printf("⚠️ [Stream] 缓冲区已满，丢弃事件: Remote=%s, Type=%s", remote, ev.Type)
			}
		}
	}()

	// WriteControl 可与数据写入并发调用
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		ev, ok, done := buf.TryPopWithDone(ctx.Done())
		if done {
			break
		}
		if !ok {
			continue
		}
		if overloaded.CompareAndSwap(true, false) {
			notice := realtime.NewWorkflowEvent(realtime.EventBackpressure, "", "", "").
				WithPayload("usage", buf.Usage())
			if err := h.write(conn, notice); err != nil {
				break
			}
		}
		if err := h.write(conn, ev); err != nil {
			break
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	in, out, dropped, _ := buf.Stats()
	log.Printf("🔌 [Stream] 客户端已断开: Remote=%s, In=%d, Out=%d, Dropped=%d", remote, in, out, dropped)
}

func (h *StreamHandler) write(conn *websocket.Conn, ev *realtime.WorkflowEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}

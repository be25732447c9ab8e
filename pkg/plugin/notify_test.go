package plugin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePluginData(event TriggerEvent) PluginData {
	return PluginData{
		Event:      event,
		WorkflowID: "wf_20250101_120000_abcd1234",
		UserID:     "u1",
		Step:       "review",
		Status:     "PENDING",
		Data:       map[string]interface{}{"topic": "热点", "revision_round": 1},
		Timestamp:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFeishuPlugin_PostsInteractiveCard(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &received)
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	p := NewFeishuPlugin()
	require.NoError(t, p.Init(map[string]string{"webhook_url": srv.URL, "timeout": "2s"}))
	require.NoError(t, p.Execute(context.Background(), samplePluginData(EventReviewPending)))

	require.NotNil(t, received)
	assert.Equal(t, "interactive", received["msg_type"])
	card := received["card"].(map[string]interface{})
	header := card["header"].(map[string]interface{})
	assert.Equal(t, "待审核", header["title"].(map[string]interface{})["content"])
	elements := card["elements"].([]interface{})
	assert.Len(t, elements, 2, "待审核事件应附带提交审核的提示")
}

func TestFeishuPlugin_NonZeroCodeIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19021,"msg":"sign match fail"}`))
	}))
	defer srv.Close()

	p := NewFeishuPlugin()
	require.NoError(t, p.Init(map[string]string{"webhook_url": srv.URL}))
	err := p.Execute(context.Background(), samplePluginData(EventWorkflowFailed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "19021")
}

func TestFeishuPlugin_HTTPErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewFeishuPlugin()
	require.NoError(t, p.Init(map[string]string{"webhook_url": srv.URL}))
	assert.Error(t, p.Execute(context.Background(), samplePluginData(EventWorkflowFailed)))
}

func TestFeishuPlugin_InitValidation(t *testing.T) {
	assert.Error(t, NewFeishuPlugin().Init(map[string]string{}))
	assert.Error(t, NewFeishuPlugin().Init(map[string]string{"webhook_url": "http://x", "timeout": "soon"}))
	assert.Error(t, NewFeishuPlugin().Execute(context.Background(), PluginData{}), "未初始化应报错")
}

func TestFilePlugin_WritesNotification(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notifications")
	p := NewFilePlugin()
	require.NoError(t, p.Init(map[string]string{"dir": dir}))

	data := samplePluginData(EventWorkflowPublished)
	require.NoError(t, p.Execute(context.Background(), data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, "_workflow_published_"+data.WorkflowID+".json"), name)

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got struct {
		EventType string     `json:"event_type"`
		Timestamp string     `json:"timestamp"`
		Payload   PluginData `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "workflow.published", got.EventType)
	assert.Equal(t, data.WorkflowID, got.Payload.WorkflowID)
	assert.Equal(t, "热点", got.Payload.Data["topic"])
}

func TestFilePlugin_RequiresDir(t *testing.T) {
	assert.Error(t, NewFilePlugin().Init(map[string]string{}))
}

func newEmailPlugin(t *testing.T, params map[string]string) *EmailPlugin {
	t.Helper()
	base := map[string]string{
		"smtp_host": "smtp.example.com",
		"smtp_port": "587",
		"from":      "bot@example.com",
		"to":        "a@example.com, b@example.com,",
	}
	for k, v := range params {
		base[k] = v
	}
	p := NewEmailPlugin().(*EmailPlugin)
	require.NoError(t, p.Init(base))
	return p
}

func TestEmailPlugin_ComposeLifecycleMail(t *testing.T) {
	p := newEmailPlugin(t, map[string]string{"review_url": "https://ops.example.com/review/"})
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, p.to)

	t.Run("发布成功带标题和发布ID", func(t *testing.T) {
		data := samplePluginData(EventWorkflowPublished)
		data.Step = "analyze"
		data.Status = "published"
		data.Data["title"] = "存款利率又降了"
		data.Data["publish_id"] = "note-42"

		mail := p.compose(data)
		assert.Equal(t, "[发布成功] 存款利率又降了", mail.subject)
		assert.Contains(t, mail.body, "实例: "+data.WorkflowID)
		assert.Contains(t, mail.body, "步骤: analyze")
		assert.Contains(t, mail.body, "结果: published")
		assert.Contains(t, mail.body, "发布ID: note-42")
		assert.Contains(t, mail.body, "选题: 热点")
		assert.NotContains(t, mail.body, "审核链接")
	})

	t.Run("待审核带审核链接", func(t *testing.T) {
		mail := p.compose(samplePluginData(EventReviewPending))
		assert.Equal(t, "[待审核] 热点", mail.subject)
		assert.Contains(t, mail.body, "修改轮次: 1")
		assert.Contains(t, mail.body, "审核链接: https://ops.example.com/review/wf_20250101_120000_abcd1234")
	})

	t.Run("失败带错误且无标题时用实例ID", func(t *testing.T) {
		data := samplePluginData(EventWorkflowFailed)
		data.Data = nil
		data.Error = "llm timeout"
		mail := p.compose(data)
		assert.Equal(t, "[工作流失败] "+data.WorkflowID, mail.subject)
		assert.Contains(t, mail.body, "错误: llm timeout")
	})

	t.Run("未配置审核地址时不带链接", func(t *testing.T) {
		plain := newEmailPlugin(t, nil)
		assert.NotContains(t, plain.compose(samplePluginData(EventReviewPending)).body, "审核链接")
	})
}

func TestEmailPlugin_MessageHeaders(t *testing.T) {
	p := newEmailPlugin(t, nil)
	data := samplePluginData(EventWorkflowRejected)
	raw := string(p.compose(data).bytes(p.from, p.to))

	assert.Contains(t, raw, "From: bot@example.com\r\n")
	assert.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Date: Wed, 01 Jan 2025 12:00:00 +0000\r\n")
	assert.Contains(t, raw, "Message-ID: <"+data.WorkflowID+".workflow.rejected.")
	assert.Contains(t, raw, "\r\n\r\n审核拒绝\r\n")
	assert.NotContains(t, strings.ReplaceAll(raw, "\r\n", ""), "\n")
}

func TestEmailPlugin_DeliversOverSMTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []string, 1)
	go serveOneSMTP(t, ln, received)

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p := newEmailPlugin(t, map[string]string{"smtp_host": host, "smtp_port": port})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Execute(ctx, samplePluginData(EventWorkflowBlocked)))

	select {
	case cmds := <-received:
		assert.Contains(t, cmds, "MAIL FROM:<bot@example.com>")
		assert.Contains(t, cmds, "RCPT TO:<a@example.com>")
		assert.Contains(t, cmds, "RCPT TO:<b@example.com>")
		assert.Contains(t, strings.Join(cmds, "\n"), "实例: wf_20250101_120000_abcd1234")
	case <-time.After(5 * time.Second):
		t.Fatal("SMTP server received nothing")
	}
}

// serveOneSMTP 处理一次不带扩展的最小SMTP会话，返回收到的命令和正文行
func serveOneSMTP(t *testing.T, ln net.Listener, received chan<- []string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var lines []string
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			received <- lines
			return
		}
		lines = append(lines, line)
		switch {
		case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
			_ = tp.PrintfLine("250 localhost")
		case line == "DATA":
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotLines()
			if err != nil {
				t.Logf("read data: %v", err)
			}
			lines = append(lines, body...)
			_ = tp.PrintfLine("250 queued")
		case line == "QUIT":
			_ = tp.PrintfLine("221 bye")
			received <- lines
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func TestEmailPlugin_InitValidation(t *testing.T) {
	assert.Error(t, NewEmailPlugin().Init(map[string]string{}))
	assert.Error(t, NewEmailPlugin().Init(map[string]string{"smtp_host": "h", "smtp_port": "x"}))
	assert.Error(t, NewEmailPlugin().Init(map[string]string{"smtp_host": "h", "from": "f"}))
}

func TestTelegramPlugin_SendsHTMLMessage(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		form = readTelegramForm(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	p := NewTelegramPlugin()
	require.NoError(t, p.Init(map[string]string{"token": "123:abc", "chat_id": "42", "server_url": srv.URL}))

	data := samplePluginData(EventWorkflowFailed)
	data.Error = "<timeout>"
	require.NoError(t, p.Execute(context.Background(), data))

	assert.Equal(t, "42", form["chat_id"])
	assert.Equal(t, "HTML", form["parse_mode"])
	assert.True(t, strings.HasPrefix(form["text"], "<b>工作流失败</b>"))
	assert.Contains(t, form["text"], "&lt;timeout&gt;")
}

func TestTelegramPlugin_InitValidation(t *testing.T) {
	assert.Error(t, NewTelegramPlugin().Init(map[string]string{"chat_id": "1"}))
	assert.Error(t, NewTelegramPlugin().Init(map[string]string{"token": "t", "chat_id": "abc"}))
}

func TestDiscordPlugin_InitAndFormat(t *testing.T) {
	assert.Error(t, NewDiscordPlugin().Init(map[string]string{"channel_id": "1"}))
	assert.Error(t, NewDiscordPlugin().Init(map[string]string{"token": "t"}))
	require.NoError(t, NewDiscordPlugin().Init(map[string]string{"token": "t", "channel_id": "1"}))

	data := samplePluginData(EventWorkflowPublished)
	data.Data["body"] = strings.Repeat("长", 3000)
	text := formatDiscord(data)
	assert.True(t, strings.HasPrefix(text, "**发布成功**"))
	assert.Len(t, []rune(text), discordMessageLimit)
	assert.True(t, strings.HasSuffix(text, "..."))
}

// readTelegramForm 读取 go-telegram/bot 发送的 multipart 表单
func readTelegramForm(t *testing.T, r *http.Request) map[string]string {
	t.Helper()
	out := map[string]string{}
	if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
		return out
	}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

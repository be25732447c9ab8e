package plugin

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailPlugin 生命周期事件邮件通知
type EmailPlugin struct {
	host      string
	port      int
	auth      smtp.Auth
	from      string
	to        []string
	reviewURL string // 审核页地址前缀，为空时正文不带审核链接
	enabled   bool
}

// NewEmailPlugin 创建邮件通知插件
// 参数: smtp_host, smtp_port, username, password, from, to（逗号分隔）, review_url（可选）
func NewEmailPlugin() Plugin {
	return &EmailPlugin{}
}

// Name 插件名称
func (e *EmailPlugin) Name() string {
	return "email"
}

// Init 读取SMTP配置
func (e *EmailPlugin) Init(params map[string]string) error {
	if e.host = params["smtp_host"]; e.host == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}
	e.port = 25
	if raw := params["smtp_port"]; raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return fmt.Errorf("smtp_port参数格式错误: %q", raw)
		}
		e.port = port
	}
	if e.from = params["from"]; e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}
	e.to = e.to[:0]
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			e.to = append(e.to, addr)
		}
	}
	if len(e.to) == 0 {
		return fmt.Errorf("to参数不能为空")
	}
	if params["username"] != "" && params["password"] != "" {
		e.auth = smtp.PlainAuth("", params["username"], params["password"], e.host)
	}
	e.reviewURL = strings.TrimRight(params["review_url"], "/")

	e.enabled = true
	log.Printf("✅ [EmailPlugin] 初始化完成: SMTP=%s:%d, From=%s, To=%v", e.host, e.port, e.from, e.to)
	return nil
}

// Execute 发送一封事件通知邮件
func (e *EmailPlugin) Execute(ctx context.Context, data PluginData) error {
	if !e.enabled {
		return fmt.Errorf("邮件插件未初始化")
	}
	mail := e.compose(data)
	if err := e.deliver(ctx, mail.bytes(e.from, e.to)); err != nil {
		log.Printf("❌ [EmailPlugin] 发送邮件失败: WorkflowID=%s, Event=%s, Error=%v", data.WorkflowID, data.Event, err)
		return err
	}
	log.Printf("✅ [EmailPlugin] 邮件已发送: WorkflowID=%s, Subject=%s", data.WorkflowID, mail.subject)
	return nil
}

// lifecycleMail 一封通知邮件
type lifecycleMail struct {
	subject   string
	body      string
	messageID string
	sentAt    time.Time
}

// compose 按事件生成邮件：主题带事件名与标题，正文列出实例、步骤、结果和审核链接
func (e *EmailPlugin) compose(data PluginData) lifecycleMail {
	headline := stringField(data.Data, "title")
	if headline == "" {
		headline = stringField(data.Data, "topic")
	}
	if headline == "" {
		headline = data.WorkflowID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", eventTitle(data.Event))
	fmt.Fprintf(&b, "实例: %s\n", data.WorkflowID)
	if data.UserID != "" {
		fmt.Fprintf(&b, "用户: %s\n", data.UserID)
	}
	if data.Step != "" {
		fmt.Fprintf(&b, "步骤: %s\n", data.Step)
	}
	if data.Status != "" {
		fmt.Fprintf(&b, "结果: %s\n", data.Status)
	}
	writeField(&b, "选题", data.Data, "topic")
	writeField(&b, "标题", data.Data, "title")
	writeField(&b, "发布ID", data.Data, "publish_id")
	writeField(&b, "修改轮次", data.Data, "revision_round")
	writeField(&b, "审核意见", data.Data, "notes")
	writeField(&b, "合规结果", data.Data, "compliance")
	if data.Error != "" {
		fmt.Fprintf(&b, "\n错误: %s\n", data.Error)
	}
	if link := e.reviewLink(data); link != "" {
		fmt.Fprintf(&b, "\n审核链接: %s\n", link)
	}

	sentAt := data.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return lifecycleMail{
		subject:   fmt.Sprintf("[%s] %s", eventTitle(data.Event), headline),
		body:      b.String(),
		messageID: fmt.Sprintf("<%s.%s.%d@content-pipeline>", data.WorkflowID, data.Event, sentAt.UnixNano()),
		sentAt:    sentAt,
	}
}

// reviewLink 待审核和审核相关事件附带审核页链接
func (e *EmailPlugin) reviewLink(data PluginData) string {
	if e.reviewURL == "" || data.WorkflowID == "" {
		return ""
	}
	switch data.Event {
	case EventReviewPending, EventWorkflowResumed, EventWorkflowRevisionExhausted:
		return e.reviewURL + "/" + data.WorkflowID
	default:
		return ""
	}
}

func (m lifecycleMail) bytes(from string, to []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.subject))
	fmt.Fprintf(&b, "Date: %s\r\n", m.sentAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", m.messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.body, "\n", "\r\n"))
	return []byte(b.String())
}

// deliver 连接SMTP服务器投递；465端口走隐式TLS，其余端口在服务器支持时升级STARTTLS
func (e *EmailPlugin) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if e.port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: e.host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("连接SMTP服务器失败: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if e.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
				return fmt.Errorf("STARTTLS失败: %w", err)
			}
		}
	}
	if e.auth != nil {
		if err := client.Auth(e.auth); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人 %s 失败: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("写入邮件失败: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("写入邮件失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("写入邮件失败: %w", err)
	}
	return client.Quit()
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func writeField(b *strings.Builder, label string, m map[string]interface{}, key string) {
	if v := stringField(m, key); v != "" {
		fmt.Fprintf(b, "%s: %s\n", label, v)
	}
}

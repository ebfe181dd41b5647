package plugin

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/LENAX/dagflow/pkg/core/events"
	"github.com/LENAX/dagflow/pkg/core/state"
)

// EmailPlugin 邮件通知插件（对外导出）
type EmailPlugin struct {
	name     string
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool
}

// NewEmailPlugin 创建邮件通知插件（对外导出）
func NewEmailPlugin() Plugin {
	return &EmailPlugin{
		name:    "email",
		enabled: false,
	}
}

// Name 插件名称（实现Plugin接口）
func (e *EmailPlugin) Name() string {
	return e.name
}

// Init 初始化插件（实现Plugin接口）
func (e *EmailPlugin) Init(params map[string]string) error {
	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}

	// SMTP端口（默认25）
	e.smtpPort = 25
	if portStr := params["smtp_port"]; portStr != "" {
		if _, err := fmt.Sscanf(portStr, "%d", &e.smtpPort); err != nil {
			return fmt.Errorf("smtp_port参数格式错误: %w", err)
		}
	}

	// 用户名和密码（可选，用于认证）
	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}

	// 收件人地址（多个用逗号分隔）
	toStr := params["to"]
	if toStr == "" {
		return fmt.Errorf("to参数不能为空")
	}
	e.to = strings.Split(toStr, ",")
	for i := range e.to {
		e.to[i] = strings.TrimSpace(e.to[i])
	}

	e.enabled = true
	log.Printf("[EmailPlugin] 初始化完成: SMTP=%s:%d, From=%s, To=%v", e.smtpHost, e.smtpPort, e.from, e.to)
	return nil
}

// Notify 处理一条事件（实现Plugin接口）
func (e *EmailPlugin) Notify(event *events.Event) error {
	if !e.enabled {
		return fmt.Errorf("邮件插件未初始化")
	}

	subject, body, err := e.render(event)
	if err != nil {
		return err
	}

	if err := e.sendEmail(subject, body); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	log.Printf("[EmailPlugin] 邮件发送成功: Event=%s, Subject=%s", event.Type, subject)
	return nil
}

// render 按事件类型构建邮件主题和正文
func (e *EmailPlugin) render(event *events.Event) (string, string, error) {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("事件类型: %s\n", event.Type))
	body.WriteString(fmt.Sprintf("时间: %s\n", event.Timestamp.Format("2006-01-02 15:04:05")))

	switch event.Type {
	case events.EventTIStateChanged:
		var p events.TIStateChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", fmt.Errorf("解析事件负载失败: %w", err)
		}
		body.WriteString(fmt.Sprintf("TaskInstance: %s\n", p.Key))
		body.WriteString(fmt.Sprintf("状态: %s -> %s\n", p.OldState, p.NewState))
		body.WriteString(fmt.Sprintf("Try: %d\n", p.TryNumber))

		subject := fmt.Sprintf("[Task状态变更] %s: %s -> %s", p.Key, p.OldState, p.NewState)
		if p.NewState == state.StateFailed {
			subject = fmt.Sprintf("[Task失败] %s (try %d)", p.Key, p.TryNumber)
		}
		return subject, body.String(), nil

	case events.EventDagRunStateChanged:
		var p events.DagRunStateChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", fmt.Errorf("解析事件负载失败: %w", err)
		}
		body.WriteString(fmt.Sprintf("DagRun: %s.%s\n", p.DagID, p.RunID))
		body.WriteString(fmt.Sprintf("状态: %s -> %s\n", p.OldState, p.NewState))
		return fmt.Sprintf("[DagRun状态变更] %s.%s: %s -> %s", p.DagID, p.RunID, p.OldState, p.NewState), body.String(), nil

	case events.EventRunCleared:
		var p events.RunClearedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", fmt.Errorf("解析事件负载失败: %w", err)
		}
		body.WriteString(fmt.Sprintf("DAG: %s\n", p.DagID))
		body.WriteString(fmt.Sprintf("清除的TaskInstance数: %d\n", len(p.Keys)))
		for _, key := range p.Keys {
			body.WriteString(fmt.Sprintf("  %s\n", key))
		}
		return fmt.Sprintf("[已清除] %s: %d个TaskInstance", p.DagID, len(p.Keys)), body.String(), nil

	default:
		return fmt.Sprintf("[系统通知] %s", event.Type), body.String(), nil
	}
}

// sendEmail 发送邮件
func (e *EmailPlugin) sendEmail(subject, body string) error {
	message := e.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	// 如果配置了用户名和密码，使用认证
	if e.username != "" && e.password != "" {
		auth := smtp.PlainAuth("", e.username, e.password, e.smtpHost)

		// 对于TLS，需要先建立TLS连接
		if e.smtpPort == 465 {
			return e.sendEmailTLS(addr, auth, message)
		}

		return smtp.SendMail(addr, auth, e.from, e.to, []byte(message))
	}

	// 无认证发送（不推荐，仅用于测试）
	return smtp.SendMail(addr, nil, e.from, e.to, []byte(message))
}

// sendEmailTLS 通过TLS发送邮件（用于465端口）
func (e *EmailPlugin) sendEmailTLS(addr string, auth smtp.Auth, message string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: e.smtpHost,
	})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP认证失败: %w", err)
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, to := range e.to {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}

	return client.Quit()
}

// buildMessage 构建邮件消息
func (e *EmailPlugin) buildMessage(subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.to, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}

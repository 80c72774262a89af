package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// MailerConfig SMTP 設定
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// AdminAddress 新使用者註冊時收件的管理員信箱
	AdminAddress string
	// ImplicitTLS port 465 這類一開始就走 TLS 的伺服器
	ImplicitTLS bool
}

// sendFunc 送出一封信，必須遵守 ctx 的逾時與取消
type sendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Mailer 以 email 通知管理員有新使用者註冊，其它類型的通知略過
type Mailer struct {
	cfg  MailerConfig
	send sendFunc
}

// NewMailer 建立 Mailer
func NewMailer(cfg MailerConfig) *Mailer {
	m := &Mailer{cfg: cfg}
	m.send = m.sendMail
	return m
}

func (m *Mailer) Name() string { return "smtp" }

// Send 只處理 account.signup
func (m *Mailer) Send(ctx context.Context, n domain.Notification) error {
	if n.Type != domain.NotificationSignup {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	msg := buildMessage(from, m.cfg.AdminAddress, "New User Signup",
		fmt.Sprintf("A new user signed up:\r\nName: %s\r\nEmail: %s\r\n", n.Name, n.Identity))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(ctx, m.addr(), auth, from, []string{m.cfg.AdminAddress}, msg); err != nil {
		return fmt.Errorf("failed to send signup email: %w", err)
	}
	return nil
}

func (m *Mailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// sendMail 與 smtp.SendMail 流程相同，但整段對話都受 ctx 限制:
// 連線用 DialContext，之後以 ctx 的 deadline 設定讀寫逾時，ctx 取消時直接關閉連線
func (m *Mailer) sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	tlsConfig := &tls.Config{ServerName: m.cfg.Host}
	if m.cfg.ImplicitTLS {
		// port 465: 一開始就走 TLS
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if !m.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

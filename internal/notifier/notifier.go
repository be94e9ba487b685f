package notifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nikoksr/notify"
	nhttp "github.com/nikoksr/notify/service/http"
	"github.com/nikoksr/notify/service/mail"
	"go.uber.org/zap"
)

// DefaultIFTTTURL IFTTT Webhooks 服务地址
const DefaultIFTTTURL = "https://maker.ifttt.com"

// Config 告警配置，邮件和 IFTTT 都可以不配置
type Config struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	From         string
	To           []string

	IFTTTKey string
	IFTTTURL string
}

// Notifier 邮件告警 + IFTTT Webhook
type Notifier struct {
	cfg    Config
	logger *zap.Logger
}

// New 创建告警器
func New(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.IFTTTURL == "" {
		cfg.IFTTTURL = DefaultIFTTTURL
	}
	if cfg.From == "" {
		cfg.From = cfg.SMTPUser
	}
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}
	return &Notifier{cfg: cfg, logger: logger}
}

// MailEnabled 是否配置了邮件
func (n *Notifier) MailEnabled() bool {
	return n.cfg.SMTPHost != "" && len(n.cfg.To) > 0
}

// WebhookEnabled 是否配置了 IFTTT
func (n *Notifier) WebhookEnabled() bool {
	return n.cfg.IFTTTKey != ""
}

// Send 发送邮件告警，未配置时直接返回
func (n *Notifier) Send(ctx context.Context, subject, message string) error {
	if !n.MailEnabled() {
		return nil
	}

	// 每次新建服务，AddReceivers 会累积收件人
	mailSvc := mail.New(n.cfg.From, n.cfg.SMTPHost+":"+n.cfg.SMTPPort)
	if n.cfg.SMTPUser != "" {
		mailSvc.AuthenticateSMTP("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}
	mailSvc.AddReceivers(n.cfg.To...)

	sender := notify.New()
	sender.UseServices(mailSvc)

	if err := sender.Send(ctx, "[Petgazer] "+subject, message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("Alert email sent", zap.String("subject", subject), zap.Int("recipients", len(n.cfg.To)))
	return nil
}

// Trigger 触发 IFTTT 事件，未配置时直接返回
func (n *Notifier) Trigger(ctx context.Context, event string) error {
	if !n.WebhookEnabled() {
		return nil
	}

	hook := nhttp.New()
	hook.AddReceiversURLs(n.TriggerURL(event))

	sender := notify.New()
	sender.UseServices(hook)

	if err := sender.Send(ctx, event, event); err != nil {
		return fmt.Errorf("trigger %s: %w", event, err)
	}
	n.logger.Info("IFTTT event triggered", zap.String("event", event))
	return nil
}

// TriggerURL IFTTT 事件地址
func (n *Notifier) TriggerURL(event string) string {
	return fmt.Sprintf("%s/trigger/%s/with/key/%s",
		strings.TrimRight(n.cfg.IFTTTURL, "/"),
		url.PathEscape(event),
		url.PathEscape(n.cfg.IFTTTKey))
}

package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// LogSink 只把通知寫進 log，沒有設定 Kafka / SMTP 時使用
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n domain.Notification) error {
	fields := []zap.Field{
		zap.String("id", n.ID.String()),
		zap.String("type", string(n.Type)),
		zap.String("email", n.Identity),
		zap.String("balance", n.Balance.String()),
	}
	if n.Entry != nil {
		fields = append(fields,
			zap.String("entry_id", n.Entry.ID.String()),
			zap.String("entry_status", string(n.Entry.Status)),
			zap.String("amount", n.Entry.Amount.String()))
	}
	s.logger.Info("Notification", fields...)
	return nil
}

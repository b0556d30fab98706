package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/milkbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("sms_no_recipient")

type Provider interface {
	Send(ctx context.Context, to, text string) error
}

// LogProvider writes messages to the log instead of a carrier.
type LogProvider struct {
	senderID string
	log      *zap.Logger
}

func NewLogProvider(senderID string, log *zap.Logger) *LogProvider {
	return &LogProvider{senderID: senderID, log: log.Named("sms.log")}
}

func (p *LogProvider) Send(ctx context.Context, to, text string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	p.log.Info("sms",
		zap.String("sender_id", p.senderID),
		zap.String("to_suffix", suffix(to, 4)),
		zap.Int("length", len(text)),
	)
	return nil
}

func suffix(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[len(value)-n:]
}

var Module = fx.Module("providers.sms",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.SMS.Provider {
	case "", "log":
	default:
		log.Warn("unknown SMS_PROVIDER, falling back to log", zap.String("provider", cfg.SMS.Provider))
	}
	return NewLogProvider(cfg.SMS.SenderID, log)
}

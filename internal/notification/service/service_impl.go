package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/notification/domain"
	"github.com/smallbiznis/milkbill/internal/observability/metrics"
	"github.com/smallbiznis/milkbill/internal/providers/email"
	"github.com/smallbiznis/milkbill/internal/providers/sms"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxErrorLength = 500

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Email   email.Provider
	SMS     sms.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	email   email.Provider
	sms     sms.Provider
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("notification.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		email:   p.Email,
		sms:     p.SMS,
		metrics: p.Metrics,
	}
}

func (s *Service) Dispatch(ctx context.Context, msg domain.Message) {
	if msg.Email != nil {
		err := s.email.Send(ctx, email.Message{
			To:          []string{msg.Email.To},
			Subject:     msg.Email.Subject,
			HTML:        msg.Email.HTML,
			Attachments: toEmailAttachments(msg.Email.Attachments),
		})
		s.record(ctx, msg, domain.ChannelEmail, msg.Email.Subject, err)
	}
	if msg.SMS != nil {
		err := s.sms.Send(ctx, msg.SMS.To, msg.SMS.Text)
		s.record(ctx, msg, domain.ChannelSMS, msg.SMS.Text, err)
	}
}

func (s *Service) record(ctx context.Context, msg domain.Message, channel domain.Channel, text string, sendErr error) {
	entry := domain.LogEntry{
		ID:       s.genID.Generate(),
		OwnerID:  msg.OwnerID,
		Channel:  channel,
		Category: msg.Category,
		Message:  text,
		Status:   domain.StatusSent,
		SentAt:   s.clock.Now().UTC(),
	}
	if sendErr != nil {
		entry.Status = domain.StatusFailed
		entry.Error = truncate(sendErr.Error(), maxErrorLength)
		s.log.Warn("notification delivery failed",
			zap.String("owner_id", msg.OwnerID.String()),
			zap.String("channel", string(channel)),
			zap.String("category", string(msg.Category)),
			zap.Error(sendErr),
		)
	}
	s.metrics.RecordNotification(ctx, string(channel), string(msg.Category), string(entry.Status))

	// The log write must not depend on the caller still waiting.
	if err := s.repo.Insert(context.WithoutCancel(ctx), s.db, &entry); err != nil {
		s.log.Error("notification log write failed",
			zap.String("owner_id", msg.OwnerID.String()),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
	}
}

func (s *Service) ListLog(ctx context.Context, req domain.ListLogRequest) (domain.ListLogResponse, error) {
	after, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListLogResponse{}, err
	}
	limit := req.Limit()

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		OwnerID: req.OwnerID,
		After:   after,
		Limit:   limit,
	})
	if err != nil {
		return domain.ListLogResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(e *domain.LogEntry) pagination.Cursor {
		return pagination.Cursor{ID: int64(e.ID), CreatedAt: e.SentAt}
	})
	if err != nil {
		return domain.ListLogResponse{}, err
	}

	out := make([]domain.LogEntry, 0, len(page))
	for _, item := range page {
		out = append(out, *item)
	}
	return domain.ListLogResponse{Items: out, PageInfo: info}, nil
}

func toEmailAttachments(in []domain.Attachment) []email.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]email.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, email.Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	return out
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

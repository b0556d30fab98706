package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/smallbiznis/milkbill/internal/price/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("price.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CurrentPrice(ctx context.Context, asOf time.Time) (domain.PriceSetting, bool, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	setting, err := s.repo.FindEffective(ctx, s.db, period.DateOf(asOf, s.clock.Location()))
	if err != nil {
		return domain.PriceSetting{}, false, err
	}
	if setting == nil {
		return domain.PriceSetting{}, false, nil
	}
	return *setting, true, nil
}

func (s *Service) SetPrice(ctx context.Context, req domain.SetPriceRequest) (domain.PriceSetting, error) {
	if !req.PricePerLiter.IsPositive() {
		return domain.PriceSetting{}, domain.ErrInvalidPrice
	}

	now := s.clock.Now()
	effective := period.DateOf(now, s.clock.Location())
	if req.EffectiveDate != nil && !req.EffectiveDate.IsZero() {
		effective = period.DateOf(*req.EffectiveDate, time.UTC)
	}

	setting := domain.PriceSetting{
		ID:            s.genID.Generate(),
		EffectiveDate: effective,
		PricePerLiter: req.PricePerLiter.Round(2),
		CreatedAt:     now.UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &setting); err != nil {
		return domain.PriceSetting{}, err
	}

	s.log.Info("price set",
		zap.String("price_per_liter", setting.PricePerLiter.StringFixed(2)),
		zap.String("effective_date", period.FormatDate(setting.EffectiveDate)),
	)
	return setting, nil
}

func (s *Service) History(ctx context.Context, limit int) ([]domain.PriceSetting, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	items, err := s.repo.List(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PriceSetting, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

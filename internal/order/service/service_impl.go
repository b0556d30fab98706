package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	PriceSvc pricedomain.Service
	OwnerSvc ownerdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	priceSvc pricedomain.Service
	ownerSvc ownerdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		priceSvc: p.PriceSvc,
		ownerSvc: p.OwnerSvc,
	}
}

func (s *Service) UpsertOrder(ctx context.Context, caller authorization.Caller, req domain.UpsertOrderRequest) (domain.Order, error) {
	ownerID, err := s.resolveOwner(ctx, caller, req.OwnerID)
	if err != nil {
		return domain.Order{}, err
	}
	if req.Date.IsZero() {
		return domain.Order{}, domain.ErrInvalidDate
	}
	if req.Quantity.IsNegative() {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	status := domain.StatusPending
	if req.Status != nil {
		status, err = domain.ParseStatus(string(*req.Status))
		if err != nil {
			return domain.Order{}, err
		}
	}

	now := s.clock.Now()
	orderDate := period.DateOf(req.Date, time.UTC)
	if !caller.IsPrivileged() {
		if !orderDate.After(s.today()) {
			return domain.Order{}, domain.ErrDateNotInFuture
		}
		if status != domain.StatusPending && status != domain.StatusCancelled {
			return domain.Order{}, domain.ErrStatusNotAllowed
		}
	}

	existing, err := s.repo.FindByOwnerDate(ctx, s.db, ownerID, orderDate)
	if err != nil {
		return domain.Order{}, err
	}
	if existing == nil {
		price, ok, err := s.priceSvc.CurrentPrice(ctx, now)
		if err != nil {
			return domain.Order{}, err
		}
		if !ok {
			return domain.Order{}, pricedomain.ErrPriceNotSet
		}

		order := domain.Order{
			ID:           s.genID.Generate(),
			OwnerID:      ownerID,
			OrderDate:    orderDate,
			Quantity:     req.Quantity.Round(2),
			Status:       status,
			PricePerUnit: price.PricePerLiter,
			CreatedAt:    now.UTC(),
			UpdatedAt:    now.UTC(),
		}
		created, err := s.repo.InsertIfAbsent(ctx, s.db, &order)
		if err != nil {
			return domain.Order{}, err
		}
		if created {
			s.log.Info("order created",
				zap.String("owner_id", ownerID.String()),
				zap.String("date", period.FormatDate(orderDate)),
				zap.String("status", string(status)),
			)
			return order, nil
		}

		// Lost the race against a concurrent create; replace the winner instead.
		existing, err = s.repo.FindByOwnerDate(ctx, s.db, ownerID, orderDate)
		if err != nil {
			return domain.Order{}, err
		}
		if existing == nil {
			return domain.Order{}, domain.ErrNotFound
		}
	}

	if caller.IsPrivileged() && !s.inEditWindow(existing.OrderDate) {
		return domain.Order{}, domain.ErrEditWindowClosed
	}

	existing.Quantity = req.Quantity.Round(2)
	existing.Status = status
	existing.UpdatedAt = now.UTC()
	if err := s.repo.UpdateQuantityStatus(ctx, s.db, existing); err != nil {
		return domain.Order{}, err
	}
	return *existing, nil
}

func (s *Service) SetStatus(ctx context.Context, caller authorization.Caller, orderID snowflake.ID, status domain.Status) (domain.Order, error) {
	if !caller.IsPrivileged() {
		return domain.Order{}, authorization.ErrForbidden
	}
	status, err := domain.ParseStatus(string(status))
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	if !s.inEditWindow(order.OrderDate) {
		return domain.Order{}, domain.ErrEditWindowClosed
	}
	if order.Status == status {
		return *order, nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, s.db, order.ID, status, now); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)
	order.Status = status
	order.UpdatedAt = now
	return *order, nil
}

func (s *Service) GenerateDefaults(ctx context.Context, caller authorization.Caller, req domain.GenerateDefaultsRequest) (int, error) {
	if req.Days < 1 || req.Days > domain.MaxGenerateDays {
		return 0, domain.ErrInvalidDays
	}
	ownerID, err := s.resolveOwner(ctx, caller, req.OwnerID)
	if err != nil {
		return 0, err
	}
	owner, err := s.ownerSvc.Get(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	price, ok, err := s.priceSvc.CurrentPrice(ctx, now)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, pricedomain.ErrPriceNotSet
	}

	start := s.today()
	if !req.StartDate.IsZero() {
		start = period.DateOf(req.StartDate, time.UTC)
	}
	today := s.today()

	created := 0
	for i := 0; i < req.Days; i++ {
		date := start.AddDate(0, 0, i)
		if owner.SkipsWeekday(date.Weekday()) {
			continue
		}
		if !caller.IsPrivileged() && !date.After(today) {
			continue
		}

		order := domain.Order{
			ID:           s.genID.Generate(),
			OwnerID:      ownerID,
			OrderDate:    date,
			Quantity:     owner.DefaultQuantity,
			Status:       domain.StatusPending,
			PricePerUnit: price.PricePerLiter,
			CreatedAt:    now.UTC(),
			UpdatedAt:    now.UTC(),
		}
		ok, err := s.repo.InsertIfAbsent(ctx, s.db, &order)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	s.log.Info("default orders generated",
		zap.String("owner_id", ownerID.String()),
		zap.String("start", period.FormatDate(start)),
		zap.Int("days", req.Days),
		zap.Int("created", created),
	)
	return created, nil
}

func (s *Service) List(ctx context.Context, caller authorization.Caller, req domain.ListOrdersRequest) ([]domain.Order, error) {
	filter := domain.ListFilter{OwnerID: req.OwnerID}
	if !caller.IsPrivileged() {
		filter.OwnerID = caller.ID
	}
	switch {
	case req.Date != nil:
		date := period.DateOf(*req.Date, time.UTC)
		filter.From, filter.To = &date, &date
	case req.Month != nil && !req.Month.IsZero():
		from, to := req.Month.Start(), req.Month.End()
		filter.From, filter.To = &from, &to
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// resolveOwner pins company callers to themselves and requires admins to name an existing owner.
func (s *Service) resolveOwner(ctx context.Context, caller authorization.Caller, requested snowflake.ID) (snowflake.ID, error) {
	if !caller.IsPrivileged() {
		if caller.ID == 0 {
			return 0, authorization.ErrUnauthorized
		}
		if requested != 0 && requested != caller.ID {
			return 0, authorization.ErrForbidden
		}
		return caller.ID, nil
	}
	if requested == 0 {
		return 0, domain.ErrInvalidOwner
	}
	if _, err := s.ownerSvc.Get(ctx, requested); err != nil {
		if errors.Is(err, ownerdomain.ErrNotFound) {
			return 0, domain.ErrInvalidOwner
		}
		return 0, err
	}
	return requested, nil
}

func (s *Service) today() time.Time {
	return period.DateOf(s.clock.Now(), s.clock.Location())
}

func (s *Service) inEditWindow(orderDate time.Time) bool {
	return period.MonthOfDate(orderDate).Equal(period.MonthOf(s.clock.Now(), s.clock.Location()))
}


package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/gateway"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	"github.com/smallbiznis/milkbill/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/smallbiznis/milkbill/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Policy    *config.BillingPolicyHolder
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	OwnerSvc  ownerdomain.Service
	Gateway   gateway.Gateway
	Notifier  notificationdomain.Service
	PDF       pdf.Renderer
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	baseURL   string
	business  string
	policy    *config.BillingPolicyHolder
	repo      domain.Repository
	orderRepo orderdomain.Repository
	ownerSvc  ownerdomain.Service
	gateway   gateway.Gateway
	notifier  notificationdomain.Service
	pdf       pdf.Renderer
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		baseURL:   p.Config.BaseURL,
		business:  p.Config.AppName,
		policy:    p.Policy,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		ownerSvc:  p.OwnerSvc,
		gateway:   p.Gateway,
		notifier:  p.Notifier,
		pdf:       p.PDF,
		metrics:   p.Metrics,
	}
}

func (s *Service) GenerateBill(ctx context.Context, req domain.GenerateBillRequest) (domain.Bill, error) {
	if req.Month.IsZero() {
		return domain.Bill{}, domain.ErrInvalidMonth
	}
	if req.OwnerID == 0 {
		return domain.Bill{}, domain.ErrInvalidOwner
	}
	owner, err := s.ownerSvc.Get(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, ownerdomain.ErrNotFound) {
			return domain.Bill{}, domain.ErrInvalidOwner
		}
		return domain.Bill{}, err
	}
	if owner.Role != string(authorization.RoleCompany) {
		return domain.Bill{}, domain.ErrInvalidOwner
	}

	_, bill, err := s.generate(ctx, owner, req.Month, req.Force, false)
	if err != nil {
		return domain.Bill{}, err
	}
	return bill, nil
}

func (s *Service) GenerateAllBills(ctx context.Context, month period.Month) (domain.Summary, error) {
	if month.IsZero() {
		month = period.MonthOf(s.clock.Now(), s.clock.Location())
	}
	owners, err := s.ownerSvc.ListCompanies(ctx)
	if err != nil {
		return domain.Summary{}, err
	}

	results := make([]domain.OwnerResult, len(owners))
	var g errgroup.Group
	g.SetLimit(s.policy.Get().BatchConcurrency)
	for i, owner := range owners {
		g.Go(func() error {
			result, _, err := s.generate(ctx, owner, month, false, true)
			if err != nil {
				s.log.Warn("bill generation failed",
					zap.String("owner_id", owner.ID.String()),
					zap.String("month", month.String()),
					zap.Error(err),
				)
				result = domain.OwnerResult{OwnerID: owner.ID, Error: err.Error()}
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.Summary{Month: month.String(), Results: results}
	for _, result := range results {
		switch {
		case result.Error != "":
			summary.Failed++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Generated++
		}
	}
	s.log.Info("monthly billing finished",
		zap.String("month", summary.Month),
		zap.Int("generated", summary.Generated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// generate builds one owner's bill. In batch mode owners without deliveries
// and already Paid bills are skipped instead of failing.
func (s *Service) generate(ctx context.Context, owner ownerdomain.Owner, month period.Month, force, batch bool) (domain.OwnerResult, domain.Bill, error) {
	result := domain.OwnerResult{OwnerID: owner.ID}

	existing, err := s.repo.FindByOwnerMonth(ctx, s.db, owner.ID, month.String())
	if err != nil {
		return result, domain.Bill{}, err
	}
	if existing != nil && existing.Status == domain.StatusPaid && !force {
		if batch {
			result.BillID = existing.ID
			result.Skipped, result.SkipReason = true, domain.SkipAlreadyPaid
			return result, *existing, nil
		}
		return result, domain.Bill{}, domain.ErrBillAlreadyPaid
	}

	delivered, err := s.deliveredOrders(ctx, owner.ID, month)
	if err != nil {
		return result, domain.Bill{}, err
	}
	if batch && len(delivered) == 0 {
		result.Skipped, result.SkipReason = true, domain.SkipNoDeliveries
		return result, domain.Bill{}, nil
	}
	liters, amount := totals(delivered)

	now := s.clock.Now().UTC()
	bill := domain.Bill{
		ID:          s.genID.Generate(),
		OwnerID:     owner.ID,
		Month:       month.String(),
		TotalLiters: liters,
		TotalAmount: amount,
		Status:      domain.StatusPending,
		DueDate:     month.End().AddDate(0, 0, s.policy.Get().DueDateOffsetDays),
		PaymentLink: s.fallbackLink(owner.ID, month),
		LinkSource:  domain.LinkSourceFallback,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		written, err := s.repo.Upsert(ctx, tx, &bill, force)
		if err != nil {
			return err
		}
		stored, err := s.repo.FindByOwnerMonth(ctx, tx, owner.ID, month.String())
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("bill for %s %s vanished after upsert", owner.ID, month)
		}
		bill = *stored
		if !written {
			// Settled after the Paid check above.
			return domain.ErrBillAlreadyPaid
		}
		return nil
	})
	if errors.Is(err, domain.ErrBillAlreadyPaid) && batch {
		result.BillID = bill.ID
		result.Skipped, result.SkipReason = true, domain.SkipAlreadyPaid
		return result, bill, nil
	}
	if err != nil {
		return result, domain.Bill{}, err
	}
	if existing != nil && existing.Status == domain.StatusPaid {
		s.log.Warn("paid bill regenerated and reset to pending",
			zap.String("bill_id", bill.ID.String()),
			zap.String("month", bill.Month),
		)
	}

	if link, ok := s.gatewayLink(ctx, owner, bill); ok {
		if err := s.repo.UpdateLink(ctx, s.db, bill.ID, link, domain.LinkSourceGateway, s.clock.Now().UTC()); err != nil {
			return result, domain.Bill{}, err
		}
		bill.PaymentLink, bill.LinkSource = link, domain.LinkSourceGateway
	}
	s.metrics.RecordBillGenerated(ctx, string(bill.LinkSource))

	s.log.Info("bill generated",
		zap.String("bill_id", bill.ID.String()),
		zap.String("owner_id", owner.ID.String()),
		zap.String("month", bill.Month),
		zap.String("total_amount", bill.TotalAmount.StringFixed(2)),
		zap.String("link_source", string(bill.LinkSource)),
	)
	s.sendStatement(ctx, owner, bill, delivered)

	result.BillID = bill.ID
	result.TotalLiters = bill.TotalLiters
	result.TotalAmount = bill.TotalAmount
	result.LinkSource = bill.LinkSource
	return result, bill, nil
}

// gatewayLink asks the gateway for a collection link. Failures degrade to the fallback link.
func (s *Service) gatewayLink(ctx context.Context, owner ownerdomain.Owner, bill domain.Bill) (string, bool) {
	if !bill.TotalAmount.IsPositive() {
		return "", false
	}
	link, err := s.gateway.CreatePaymentLink(ctx, gateway.LinkRequest{
		Amount:   bill.TotalAmount,
		BillRef:  bill.ID.String(),
		OwnerRef: owner.ID.String(),
		Customer: gateway.Customer{
			Name:  owner.Name,
			Email: owner.Email,
			Phone: owner.Phone,
		},
		Description: "Monthly Milk Delivery Bill - " + bill.Month,
	})
	if err != nil {
		s.log.Warn("payment link unavailable, using fallback",
			zap.String("bill_id", bill.ID.String()),
			zap.Error(err),
		)
		s.metrics.RecordPaymentLink(ctx, string(domain.LinkSourceFallback))
		return "", false
	}
	s.metrics.RecordPaymentLink(ctx, string(domain.LinkSourceGateway))
	return link, true
}

func (s *Service) fallbackLink(ownerID snowflake.ID, month period.Month) string {
	return fmt.Sprintf("%s/payment/%s/%s", s.baseURL, ownerID, month)
}

func (s *Service) deliveredOrders(ctx context.Context, ownerID snowflake.ID, month period.Month) ([]*orderdomain.Order, error) {
	from, to := month.Start(), month.End()
	orders, err := s.orderRepo.List(ctx, s.db, orderdomain.ListFilter{
		OwnerID: ownerID,
		From:    &from,
		To:      &to,
		Status:  orderdomain.StatusDelivered,
	})
	if err != nil {
		return nil, err
	}
	// Oldest first for statements.
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
	return orders, nil
}

// totals sums quantities and each order's own frozen price.
func totals(orders []*orderdomain.Order) (decimal.Decimal, decimal.Decimal) {
	liters, amount := decimal.Zero, decimal.Zero
	for _, order := range orders {
		liters = liters.Add(order.Quantity)
		amount = amount.Add(order.Amount())
	}
	return liters.Round(2), amount.Round(2)
}

func (s *Service) SetStatus(ctx context.Context, caller authorization.Caller, billID snowflake.ID, status domain.Status) (domain.Bill, error) {
	if !caller.IsPrivileged() {
		return domain.Bill{}, authorization.ErrForbidden
	}
	status, err := domain.ParseStatus(string(status))
	if err != nil {
		return domain.Bill{}, err
	}
	bill, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil {
		return domain.Bill{}, domain.ErrNotFound
	}
	if bill.Status == status {
		return *bill, nil
	}
	if status == domain.StatusPaid {
		paid, err := s.repo.HasSuccessfulPayment(ctx, s.db, bill.ID)
		if err != nil {
			return domain.Bill{}, err
		}
		if !paid {
			return domain.Bill{}, domain.ErrPaymentRecordRequired
		}
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, s.db, bill.ID, status, now); err != nil {
		return domain.Bill{}, err
	}
	s.log.Info("bill status overridden",
		zap.String("bill_id", bill.ID.String()),
		zap.String("actor_id", caller.ID.String()),
		zap.String("from", string(bill.Status)),
		zap.String("to", string(status)),
	)
	bill.Status = status
	bill.UpdatedAt = now
	return *bill, nil
}

func (s *Service) Get(ctx context.Context, caller authorization.Caller, billID snowflake.ID) (domain.Bill, error) {
	bill, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil || (!caller.IsPrivileged() && bill.OwnerID != caller.ID) {
		return domain.Bill{}, domain.ErrNotFound
	}
	return *bill, nil
}

func (s *Service) List(ctx context.Context, caller authorization.Caller, req domain.ListBillsRequest) ([]domain.Bill, error) {
	filter := domain.ListFilter{OwnerID: req.OwnerID, Status: req.Status}
	if !caller.IsPrivileged() {
		filter.OwnerID = caller.ID
	}
	if req.Month != nil && !req.Month.IsZero() {
		filter.Month = req.Month.String()
	}
	if filter.Status != "" {
		if _, err := domain.ParseStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Bill, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

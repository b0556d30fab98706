package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/authorization"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/gateway"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	"github.com/smallbiznis/milkbill/internal/notification/templates"
	"github.com/smallbiznis/milkbill/internal/observability/metrics"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/internal/payment/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	BillRepo billingdomain.Repository
	OwnerSvc ownerdomain.Service
	Gateway  gateway.Gateway
	Notifier notificationdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	billRepo billingdomain.Repository
	ownerSvc ownerdomain.Service
	gateway  gateway.Gateway
	notifier notificationdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		billRepo: p.BillRepo,
		ownerSvc: p.OwnerSvc,
		gateway:  p.Gateway,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

var errTransactionRecorded = errors.New("transaction_already_recorded")

type reconcileOptions struct {
	// guard restricts the bill to this caller unless the caller is privileged.
	guard *authorization.Caller
	// fallbackOwner resolves a missing bill ref to this owner's Pending bill
	// for the current month.
	fallbackOwner snowflake.ID
}

func outcomeOf(gatewayStatus string) string {
	switch strings.ToLower(strings.TrimSpace(gatewayStatus)) {
	case gateway.StatusCaptured:
		return outcomeSuccess
	case gateway.StatusFailed:
		return outcomeFailure
	}
	return outcomeIgnored
}

// reconcile applies one authoritative confirmation exactly once per
// transaction id. The unique index on transaction_id arbitrates races.
func (s *Service) reconcile(ctx context.Context, c domain.Confirmation, opts reconcileOptions) (domain.Result, error) {
	c.TransactionID = strings.TrimSpace(c.TransactionID)
	if c.TransactionID == "" {
		return domain.Result{}, domain.ErrInvalidTransaction
	}

	existing, err := s.repo.FindByTransactionID(ctx, s.db, c.TransactionID)
	if err != nil {
		return domain.Result{}, err
	}
	if existing != nil {
		return s.duplicate(ctx, c.Source, existing, opts)
	}

	bill, err := s.resolveBill(ctx, c.BillRef, opts)
	if err != nil {
		return domain.Result{}, err
	}
	if err := guardOwner(opts.guard, bill.OwnerID); err != nil {
		return domain.Result{}, err
	}
	if c.OwnerRef != "" && c.OwnerRef != bill.OwnerID.String() {
		s.log.Warn("payment owner reference does not match bill",
			zap.String("transaction_id", c.TransactionID),
			zap.String("owner_ref", c.OwnerRef),
			zap.String("bill_owner_id", bill.OwnerID.String()),
		)
	}

	outcome := outcomeOf(c.GatewayStatus)
	if outcome == outcomeIgnored {
		s.metrics.RecordPaymentEvent(ctx, string(c.Source), outcomeIgnored)
		s.log.Info("payment status ignored",
			zap.String("transaction_id", c.TransactionID),
			zap.String("status", c.GatewayStatus),
		)
		return domain.Result{BillID: bill.ID, BillStatus: bill.Status, Ignored: true, RawStatus: c.GatewayStatus}, nil
	}

	now := s.clock.Now().UTC()
	record := domain.PaymentRecord{
		ID:             s.genID.Generate(),
		BillID:         bill.ID,
		OwnerID:        bill.OwnerID,
		Amount:         c.Amount.Round(2),
		TransactionID:  c.TransactionID,
		Status:         domain.StatusSuccess,
		Method:         c.Method,
		Source:         c.Source,
		PaymentDate:    c.PaidAt.UTC(),
		GatewayPayload: payloadOf(c.Payload),
		CreatedAt:      now,
	}
	if outcome == outcomeFailure {
		record.Status = domain.StatusFailed
	}
	if record.PaymentDate.IsZero() {
		record.PaymentDate = now
	}

	var (
		before = bill.Status
		after  = bill.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.Insert(ctx, tx, &record)
		if err != nil {
			return err
		}
		if !inserted {
			return errTransactionRecorded
		}

		current, err := s.billRepo.FindByID(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrBillNotFound
		}
		before, after = current.Status, current.Status

		// Paid is terminal for confirmations.
		if current.Status == billingdomain.StatusPaid {
			return nil
		}
		after = billingdomain.StatusPaid
		if outcome == outcomeFailure {
			after = billingdomain.StatusFailed
		}
		if after == current.Status {
			return nil
		}
		return s.billRepo.UpdateStatus(ctx, tx, bill.ID, after, now)
	})
	if errors.Is(err, errTransactionRecorded) {
		winner, err := s.repo.FindByTransactionID(ctx, s.db, c.TransactionID)
		if err != nil {
			return domain.Result{}, err
		}
		if winner == nil {
			return domain.Result{}, errTransactionRecorded
		}
		return s.duplicate(ctx, c.Source, winner, opts)
	}
	if err != nil {
		return domain.Result{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, string(c.Source), outcome)
	fields := []zap.Field{
		zap.String("transaction_id", record.TransactionID),
		zap.String("bill_id", bill.ID.String()),
		zap.String("source", string(c.Source)),
		zap.String("from", string(before)),
		zap.String("to", string(after)),
	}
	// A different transaction settling a Paid bill is real money received
	// twice. It keeps its own Success record for refunds; the bill is unchanged.
	if outcome == outcomeSuccess && before == billingdomain.StatusPaid {
		s.metrics.RecordDuplicateSettlement(ctx, string(c.Source))
		s.log.Warn("second successful payment for a paid bill", fields...)
	} else {
		s.log.Info("payment reconciled", fields...)
	}

	bill.Status = after
	if outcome == outcomeSuccess || after == billingdomain.StatusFailed {
		s.notifyOutcome(ctx, *bill, record)
	}
	return domain.Result{Record: &record, BillID: bill.ID, BillStatus: after}, nil
}

func (s *Service) duplicate(ctx context.Context, source domain.Source, record *domain.PaymentRecord, opts reconcileOptions) (domain.Result, error) {
	if err := guardOwner(opts.guard, record.OwnerID); err != nil {
		return domain.Result{}, err
	}
	result := domain.Result{Record: record, BillID: record.BillID, Duplicate: true}
	if bill, err := s.billRepo.FindByID(ctx, s.db, record.BillID); err == nil && bill != nil {
		result.BillStatus = bill.Status
	}
	s.metrics.RecordPaymentEvent(ctx, string(source), outcomeDuplicate)
	s.log.Info("payment already recorded",
		zap.String("transaction_id", record.TransactionID),
		zap.String("source", string(source)),
	)
	return result, nil
}

func (s *Service) resolveBill(ctx context.Context, billRef string, opts reconcileOptions) (*billingdomain.Bill, error) {
	billRef = strings.TrimSpace(billRef)
	if billRef != "" {
		id, err := strconv.ParseInt(billRef, 10, 64)
		if err != nil {
			return nil, domain.ErrBillNotFound
		}
		bill, err := s.billRepo.FindByID(ctx, s.db, snowflake.ID(id))
		if err != nil {
			return nil, err
		}
		if bill == nil {
			return nil, domain.ErrBillNotFound
		}
		return bill, nil
	}

	if opts.fallbackOwner == 0 {
		return nil, domain.ErrMissingBillRef
	}
	month := period.MonthOf(s.clock.Now(), s.clock.Location())
	bill, err := s.billRepo.FindByOwnerMonth(ctx, s.db, opts.fallbackOwner, month.String())
	if err != nil {
		return nil, err
	}
	if bill == nil || bill.Status != billingdomain.StatusPending {
		return nil, domain.ErrBillNotFound
	}
	return bill, nil
}

func guardOwner(guard *authorization.Caller, ownerID snowflake.ID) error {
	if guard == nil || guard.IsPrivileged() || guard.ID == ownerID {
		return nil
	}
	return authorization.ErrForbidden
}

func payloadOf(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}

// notifyOutcome tells the owner about a new payment. Failures are logged only.
func (s *Service) notifyOutcome(ctx context.Context, bill billingdomain.Bill, record domain.PaymentRecord) {
	ctx = context.WithoutCancel(ctx)
	owner, err := s.ownerSvc.Get(ctx, bill.OwnerID)
	if err != nil {
		s.log.Warn("payment notification skipped", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		return
	}

	data := templates.PaymentData{
		Recipient: templates.Recipient{
			OwnerID: owner.ID,
			Name:    owner.Name,
			Email:   owner.Email,
			Phone:   owner.Phone,
		},
		Month:         bill.Month,
		Amount:        record.Amount.StringFixed(2),
		TransactionID: record.TransactionID,
		PaymentLink:   bill.PaymentLink,
	}
	build := templates.PaymentSuccess
	if record.Status == domain.StatusFailed {
		build = templates.PaymentFailure
	}
	msg, err := build(data)
	if err != nil {
		s.log.Warn("payment notification failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		return
	}
	s.notifier.Dispatch(ctx, msg)
}

func (s *Service) List(ctx context.Context, caller authorization.Caller, req domain.ListPaymentsRequest) ([]domain.PaymentRecord, error) {
	filter := domain.ListFilter{OwnerID: req.OwnerID, BillID: req.BillID}
	if !caller.IsPrivileged() {
		filter.OwnerID = caller.ID
	}
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentRecord, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/billing/repository"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/dbtest"
	"github.com/smallbiznis/milkbill/internal/gateway"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	orderrepo "github.com/smallbiznis/milkbill/internal/order/repository"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	ownerrepo "github.com/smallbiznis/milkbill/internal/owner/repository"
	ownerservice "github.com/smallbiznis/milkbill/internal/owner/service"
	"github.com/smallbiznis/milkbill/internal/period"
	"github.com/smallbiznis/milkbill/internal/providers/pdf"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testBaseURL = "https://milk.example.com"

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Enabled() bool { return true }

func (m *mockGateway) CreatePaymentLink(ctx context.Context, req gateway.LinkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) FetchPayment(ctx context.Context, transactionID string) (gateway.PaymentDetails, error) {
	return gateway.PaymentDetails{}, gateway.ErrPaymentNotFound
}

func (m *mockGateway) VerifyWebhook(raw []byte, signature string) error {
	return gateway.ErrSignatureInvalid
}

func (m *mockGateway) VerifyPaymentSignature(orderID, paymentID, signature string) error {
	return gateway.ErrSignatureInvalid
}

func (m *mockGateway) ParseWebhook(raw []byte) (gateway.WebhookEvent, error) {
	return gateway.WebhookEvent{}, gateway.ErrInvalidPayload
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notificationdomain.Message
}

func (n *recordingNotifier) Dispatch(_ context.Context, msg notificationdomain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) ListLog(context.Context, notificationdomain.ListLogRequest) (notificationdomain.ListLogResponse, error) {
	return notificationdomain.ListLogResponse{}, nil
}

func (n *recordingNotifier) sent(category notificationdomain.Category) []notificationdomain.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notificationdomain.Message
	for _, msg := range n.messages {
		if msg.Category == category {
			out = append(out, msg)
		}
	}
	return out
}

// failingOrders breaks order lookups for a single owner.
type failingOrders struct {
	orderdomain.Repository
	ownerID snowflake.ID
}

func (f failingOrders) List(ctx context.Context, db *gorm.DB, filter orderdomain.ListFilter) ([]*orderdomain.Order, error) {
	if filter.OwnerID == f.ownerID {
		return nil, errors.New("orders unavailable")
	}
	return f.Repository.List(ctx, db, filter)
}

// settlingOrders runs settle once, on the first order lookup. That lookup
// sits between the Paid check and the bill write.
type settlingOrders struct {
	orderdomain.Repository
	once   sync.Once
	settle func()
}

func (o *settlingOrders) List(ctx context.Context, db *gorm.DB, filter orderdomain.ListFilter) ([]*orderdomain.Order, error) {
	o.once.Do(o.settle)
	return o.Repository.List(ctx, db, filter)
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	owners   ownerdomain.Service
	orders   orderdomain.Repository
	repo     domain.Repository
	gw       *mockGateway
	notifier *recordingNotifier
	policy   config.BillingPolicy
	admin    authorization.Caller
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(now)
	owners := ownerservice.New(ownerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: ownerrepo.Provide()})

	admin, err := owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{Name: "Admin", Email: "admin@example.com", Role: "admin"})
	require.NoError(t, err)

	policy := config.DefaultBillingPolicy()
	policy.StatementAttachPDF = false

	return &fixture{
		db:       db,
		node:     node,
		clk:      clk,
		owners:   owners,
		orders:   orderrepo.Provide(),
		repo:     repository.Provide(),
		gw:       &mockGateway{},
		notifier: &recordingNotifier{},
		policy:   policy,
		admin:    authorization.Caller{ID: admin.ID, Role: authorization.RoleAdmin},
	}
}

func (f *fixture) service() domain.Service {
	return New(Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		GenID:     f.node,
		Clock:     f.clk,
		Config:    config.Config{AppName: "Fresh Dairy", BaseURL: testBaseURL},
		Policy:    config.NewStaticBillingPolicy(f.policy),
		Repo:      f.repo,
		OrderRepo: f.orders,
		OwnerSvc:  f.owners,
		Gateway:   f.gw,
		Notifier:  f.notifier,
		PDF:       pdf.New(),
	})
}

func (f *fixture) company(t *testing.T, email string) ownerdomain.Owner {
	t.Helper()
	owner, err := f.owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{
		Name:  "Company " + email,
		Email: email,
		Role:  "company",
		Phone: "+919800000001",
	})
	require.NoError(t, err)
	return owner
}

func (f *fixture) order(t *testing.T, ownerID snowflake.ID, date string, qty, price int64, status orderdomain.Status) {
	t.Helper()
	day, err := period.ParseDate(date)
	require.NoError(t, err)
	now := f.clk.Now().UTC()
	created, err := f.orders.InsertIfAbsent(context.Background(), f.db, &orderdomain.Order{
		ID:           f.node.Generate(),
		OwnerID:      ownerID,
		OrderDate:    day,
		Quantity:     decimal.NewFromInt(qty),
		Status:       status,
		PricePerUnit: decimal.NewFromInt(price),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func (f *fixture) successfulPayment(t *testing.T, bill domain.Bill) {
	t.Helper()
	err := f.db.Exec(
		`INSERT INTO payment_records (id, bill_id, owner_id, amount, transaction_id, status, method, source, payment_date, created_at)
		 VALUES (?, ?, ?, ?, ?, 'Success', 'upi', 'manual', ?, ?)`,
		f.node.Generate(), bill.ID, bill.OwnerID, bill.TotalAmount, "txn_"+bill.ID.String(),
		f.clk.Now().UTC(), f.clk.Now().UTC(),
	).Error
	require.NoError(t, err)
}

// settle marks the bill Paid the way the reconciler does.
func (f *fixture) settle(t *testing.T, bill domain.Bill) {
	t.Helper()
	f.successfulPayment(t, bill)
	require.NoError(t, f.db.Exec(`UPDATE bills SET status = ? WHERE id = ?`, domain.StatusPaid, bill.ID).Error)
}

func mustMonth(t *testing.T, raw string) period.Month {
	t.Helper()
	m, err := period.ParseMonth(raw)
	require.NoError(t, err)
	return m
}

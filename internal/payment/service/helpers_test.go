package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	billingrepo "github.com/smallbiznis/milkbill/internal/billing/repository"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/dbtest"
	"github.com/smallbiznis/milkbill/internal/gateway"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	ownerrepo "github.com/smallbiznis/milkbill/internal/owner/repository"
	ownerservice "github.com/smallbiznis/milkbill/internal/owner/service"
	"github.com/smallbiznis/milkbill/internal/payment/domain"
	"github.com/smallbiznis/milkbill/internal/payment/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

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

func (n *recordingNotifier) count(category notificationdomain.Category) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, msg := range n.messages {
		if msg.Category == category {
			total++
		}
	}
	return total
}

// fakeRazorpay serves payment lookups from an in-memory table.
type fakeRazorpay struct {
	mu       sync.Mutex
	payments map[string]string
	down     bool
}

func (f *fakeRazorpay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/payments/")
	body, ok := f.payments[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		return
	}
	_, _ = w.Write([]byte(body))
}

func (f *fakeRazorpay) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRazorpay) put(id string, entity []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id] = string(entity)
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	owners   ownerdomain.Service
	bills    billingdomain.Repository
	repo     domain.Repository
	gw       *gateway.Razorpay
	razorpay *fakeRazorpay
	notifier *recordingNotifier
	admin    authorization.Caller
	log      *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC))
	owners := ownerservice.New(ownerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: ownerrepo.Provide()})

	admin, err := owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{Name: "Admin", Email: "admin@example.com", Role: "admin"})
	require.NoError(t, err)

	razorpay := &fakeRazorpay{payments: map[string]string{}}
	srv := httptest.NewServer(razorpay)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		BaseURL: "https://milk.example.com",
		Razorpay: config.RazorpayConfig{
			BaseURL:       srv.URL,
			KeyID:         "rzp_test_key",
			KeySecret:     "key_secret",
			WebhookSecret: webhookSecret,
			Currency:      "INR",
			Timeout:       2 * time.Second,
		},
	}

	return &fixture{
		db:       db,
		node:     node,
		clk:      clk,
		owners:   owners,
		bills:    billingrepo.Provide(),
		repo:     repository.Provide(),
		gw:       gateway.NewRazorpay(cfg, zap.NewNop(), nil, srv.Client()),
		razorpay: razorpay,
		notifier: &recordingNotifier{},
		admin:    authorization.Caller{ID: admin.ID, Role: authorization.RoleAdmin},
		log:      zap.NewNop(),
	}
}

// observe routes service logs into an in-memory sink.
func (f *fixture) observe() *observer.ObservedLogs {
	core, logs := observer.New(zap.InfoLevel)
	f.log = zap.New(core)
	return logs
}

func (f *fixture) service() domain.Service {
	return New(Params{
		DB:       f.db,
		Log:      f.log,
		GenID:    f.node,
		Clock:    f.clk,
		Repo:     f.repo,
		BillRepo: f.bills,
		OwnerSvc: f.owners,
		Gateway:  f.gw,
		Notifier: f.notifier,
	})
}

func (f *fixture) company(t *testing.T, email string) authorization.Caller {
	t.Helper()
	owner, err := f.owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{
		Name:  "Company " + email,
		Email: email,
		Role:  "company",
	})
	require.NoError(t, err)
	return authorization.Caller{ID: owner.ID, Role: authorization.RoleCompany}
}

func (f *fixture) bill(t *testing.T, ownerID snowflake.ID, month string, amount int64) billingdomain.Bill {
	t.Helper()
	now := f.clk.Now().UTC()
	bill := billingdomain.Bill{
		ID:          f.node.Generate(),
		OwnerID:     ownerID,
		Month:       month,
		TotalLiters: decimal.NewFromInt(amount / 50),
		TotalAmount: decimal.NewFromInt(amount),
		Status:      billingdomain.StatusPending,
		DueDate:     time.Date(2024, time.April, 7, 0, 0, 0, 0, time.UTC),
		PaymentLink: "https://rzp.io/l/test",
		LinkSource:  billingdomain.LinkSourceGateway,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := f.bills.Upsert(context.Background(), f.db, &bill, true)
	require.NoError(t, err)
	return bill
}

func (f *fixture) billStatus(t *testing.T, id snowflake.ID) billingdomain.Status {
	t.Helper()
	bill, err := f.bills.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, bill)
	return bill.Status
}

func (f *fixture) records(t *testing.T, transactionID string) int64 {
	t.Helper()
	return dbtest.Count(t, f.db, "payment_records", "transaction_id = ?", transactionID)
}

func paymentEntity(id, status string, paise int64, billRef, ownerRef string) []byte {
	notes := any([]any{})
	if billRef != "" || ownerRef != "" {
		notes = map[string]string{"billId": billRef, "userId": ownerRef}
	}
	entity, _ := json.Marshal(map[string]any{
		"id":         id,
		"entity":     "payment",
		"status":     status,
		"amount":     paise,
		"currency":   "INR",
		"method":     "upi",
		"created_at": 1712052000,
		"notes":      notes,
	})
	return entity
}

func webhookBody(event string, entity []byte) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":%q,"payload":{"payment":{"entity":%s}}}`, event, entity))
}

func signed(body []byte) string {
	return gateway.Sign(body, webhookSecret)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/milkbill/internal/audit/domain"
	"github.com/smallbiznis/milkbill/internal/authorization"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/lock"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	"github.com/smallbiznis/milkbill/internal/observability"
	obsmetrics "github.com/smallbiznis/milkbill/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	paymentdomain "github.com/smallbiznis/milkbill/internal/payment/domain"
	"github.com/smallbiznis/milkbill/internal/period"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	"github.com/smallbiznis/milkbill/internal/scheduler"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID   snowflake.ID = 1
	companyID snowflake.ID = 2
	cronToken              = "cron-secret"
)

type fakeOwners struct {
	ownerdomain.Service
	owners       map[snowflake.ID]ownerdomain.Owner
	settingsFor  snowflake.ID
	lastSettings ownerdomain.UpdateSettingsRequest
}

func (f *fakeOwners) Get(_ context.Context, id snowflake.ID) (ownerdomain.Owner, error) {
	owner, ok := f.owners[id]
	if !ok {
		return ownerdomain.Owner{}, ownerdomain.ErrNotFound
	}
	return owner, nil
}

func (f *fakeOwners) ListCompanies(context.Context) ([]ownerdomain.Owner, error) {
	return nil, nil
}

func (f *fakeOwners) GetSettings(_ context.Context, id snowflake.ID) (ownerdomain.Settings, error) {
	f.settingsFor = id
	owner, ok := f.owners[id]
	if !ok {
		return ownerdomain.Settings{}, ownerdomain.ErrNotFound
	}
	return owner.Settings(), nil
}

func (f *fakeOwners) UpdateSettings(_ context.Context, id snowflake.ID, req ownerdomain.UpdateSettingsRequest) (ownerdomain.Settings, error) {
	f.settingsFor = id
	f.lastSettings = req
	return ownerdomain.Settings{SkipDays: []int{}}, nil
}

type fakeOrders struct {
	orderdomain.Service
	caller     authorization.Caller
	listReq    orderdomain.ListOrdersRequest
	upsertReq  orderdomain.UpsertOrderRequest
	upsertErr  error
	generated  orderdomain.GenerateDefaultsRequest
	statusID   snowflake.ID
	statusSent orderdomain.Status
}

func (f *fakeOrders) List(_ context.Context, caller authorization.Caller, req orderdomain.ListOrdersRequest) ([]orderdomain.Order, error) {
	f.caller, f.listReq = caller, req
	return []orderdomain.Order{{ID: 10, OwnerID: caller.ID, Status: orderdomain.StatusPending}}, nil
}

func (f *fakeOrders) UpsertOrder(_ context.Context, caller authorization.Caller, req orderdomain.UpsertOrderRequest) (orderdomain.Order, error) {
	f.caller, f.upsertReq = caller, req
	if f.upsertErr != nil {
		return orderdomain.Order{}, f.upsertErr
	}
	return orderdomain.Order{ID: 11, OwnerID: caller.ID, OrderDate: req.Date, Quantity: req.Quantity}, nil
}

func (f *fakeOrders) GenerateDefaults(_ context.Context, caller authorization.Caller, req orderdomain.GenerateDefaultsRequest) (int, error) {
	f.caller, f.generated = caller, req
	return req.Days, nil
}

func (f *fakeOrders) SetStatus(_ context.Context, caller authorization.Caller, id snowflake.ID, status orderdomain.Status) (orderdomain.Order, error) {
	f.caller, f.statusID, f.statusSent = caller, id, status
	return orderdomain.Order{ID: id, Status: status}, nil
}

type fakePrices struct {
	pricedomain.Service
	current *pricedomain.PriceSetting
	setReq  pricedomain.SetPriceRequest
}

func (f *fakePrices) CurrentPrice(context.Context, time.Time) (pricedomain.PriceSetting, bool, error) {
	if f.current == nil {
		return pricedomain.PriceSetting{}, false, nil
	}
	return *f.current, true, nil
}

func (f *fakePrices) History(context.Context, int) ([]pricedomain.PriceSetting, error) {
	if f.current == nil {
		return []pricedomain.PriceSetting{}, nil
	}
	return []pricedomain.PriceSetting{*f.current}, nil
}

func (f *fakePrices) SetPrice(_ context.Context, req pricedomain.SetPriceRequest) (pricedomain.PriceSetting, error) {
	f.setReq = req
	return pricedomain.PriceSetting{ID: 5, PricePerLiter: req.PricePerLiter}, nil
}

type fakeBilling struct {
	billingdomain.Service
	generateReq billingdomain.GenerateBillRequest
	generateErr error
	allMonths   []period.Month
	listReq     billingdomain.ListBillsRequest
	statusSent  billingdomain.Status
	statusErr   error
	reminders   int
}

func (f *fakeBilling) GenerateBill(_ context.Context, req billingdomain.GenerateBillRequest) (billingdomain.Bill, error) {
	f.generateReq = req
	if f.generateErr != nil {
		return billingdomain.Bill{}, f.generateErr
	}
	return billingdomain.Bill{ID: 20, OwnerID: req.OwnerID, Month: req.Month.String(), Status: billingdomain.StatusPending}, nil
}

func (f *fakeBilling) GenerateAllBills(_ context.Context, month period.Month) (billingdomain.Summary, error) {
	f.allMonths = append(f.allMonths, month)
	return billingdomain.Summary{Month: month.String(), Generated: 2}, nil
}

func (f *fakeBilling) List(_ context.Context, _ authorization.Caller, req billingdomain.ListBillsRequest) ([]billingdomain.Bill, error) {
	f.listReq = req
	return []billingdomain.Bill{}, nil
}

func (f *fakeBilling) SetStatus(_ context.Context, _ authorization.Caller, id snowflake.ID, status billingdomain.Status) (billingdomain.Bill, error) {
	f.statusSent = status
	if f.statusErr != nil {
		return billingdomain.Bill{}, f.statusErr
	}
	return billingdomain.Bill{ID: id, Status: status}, nil
}

func (f *fakeBilling) RenderStatement(context.Context, authorization.Caller, snowflake.ID) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func (f *fakeBilling) SendReminders(context.Context, time.Time) (billingdomain.ReminderSummary, error) {
	f.reminders++
	return billingdomain.ReminderSummary{Due: 1, Sent: 1}, nil
}

type fakePayments struct {
	paymentdomain.Service
	webhookRaw       []byte
	webhookSignature string
	webhookResult    paymentdomain.Result
	webhookErr       error
	verifyReq        paymentdomain.VerifyRequest
	verifyErr        error
	manualReq        paymentdomain.ManualPaymentRequest
}

func (f *fakePayments) HandleWebhook(_ context.Context, raw []byte, signature string) (paymentdomain.Result, error) {
	f.webhookRaw, f.webhookSignature = raw, signature
	return f.webhookResult, f.webhookErr
}

func (f *fakePayments) VerifyCallback(_ context.Context, _ authorization.Caller, req paymentdomain.VerifyRequest) (paymentdomain.Result, error) {
	f.verifyReq = req
	if f.verifyErr != nil {
		return paymentdomain.Result{}, f.verifyErr
	}
	return paymentdomain.Result{BillID: 20, BillStatus: billingdomain.StatusPaid}, nil
}

func (f *fakePayments) RecordManualPayment(_ context.Context, _ authorization.Caller, req paymentdomain.ManualPaymentRequest) (paymentdomain.Result, error) {
	f.manualReq = req
	return paymentdomain.Result{BillID: req.BillID}, nil
}

func (f *fakePayments) List(context.Context, authorization.Caller, paymentdomain.ListPaymentsRequest) ([]paymentdomain.PaymentRecord, error) {
	return []paymentdomain.PaymentRecord{}, nil
}

type fakeNotifications struct {
	notificationdomain.Service
	lastReq notificationdomain.ListLogRequest
}

func (f *fakeNotifications) ListLog(_ context.Context, req notificationdomain.ListLogRequest) (notificationdomain.ListLogResponse, error) {
	f.lastReq = req
	return notificationdomain.ListLogResponse{Items: []notificationdomain.LogEntry{}}, nil
}

type auditEntry struct {
	action     string
	targetType string
	targetID   string
	metadata   map[string]any
}

type fakeAudit struct {
	entries []auditEntry
	listReq auditdomain.ListAuditLogRequest
}

func (f *fakeAudit) AuditLog(_ context.Context, action, targetType, targetID string, metadata map[string]any) error {
	f.entries = append(f.entries, auditEntry{action: action, targetType: targetType, targetID: targetID, metadata: metadata})
	return nil
}

func (f *fakeAudit) List(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.listReq = req
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{}}, nil
}

type testServer struct {
	engine        *Server
	owners        *fakeOwners
	orders        *fakeOrders
	prices        *fakePrices
	billing       *fakeBilling
	payments      *fakePayments
	notifications *fakeNotifications
	audit         *fakeAudit
	scheduler     *scheduler.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	clk := clock.NewFakeClock(time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC))
	ts := &testServer{
		owners: &fakeOwners{owners: map[snowflake.ID]ownerdomain.Owner{
			adminID:   {ID: adminID, Name: "Admin", Role: "admin"},
			companyID: {ID: companyID, Name: "Acme", Role: "company"},
		}},
		orders:        &fakeOrders{},
		prices:        &fakePrices{},
		billing:       &fakeBilling{},
		payments:      &fakePayments{},
		notifications: &fakeNotifications{},
		audit:         &fakeAudit{},
	}

	policy := config.DefaultBillingPolicy()
	policy.AutofillDays = 0
	sched, err := scheduler.New(scheduler.Params{
		Log:     zap.NewNop(),
		Clock:   clk,
		Policy:  config.NewStaticBillingPolicy(policy),
		Billing: ts.billing,
		Orders:  ts.orders,
		Owners:  ts.owners,
		Locker:  lock.NewMemoryLocker(clk),
		Metrics: obsmetrics.NewSchedulerMetricsForTest(prometheus.NewRegistry()),
		Config:  scheduler.Config{TickInterval: time.Hour},
	})
	require.NoError(t, err)
	ts.scheduler = sched
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})

	ts.engine = NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}, nil),
		Cfg:             config.Config{CronSecret: cronToken},
		Clock:           clk,
		AuthzSvc:        authz,
		OwnerSvc:        ts.owners,
		PriceSvc:        ts.prices,
		OrderSvc:        ts.orders,
		BillingSvc:      ts.billing,
		PaymentSvc:      ts.payments,
		NotificationSvc: ts.notifications,
		AuditSvc:        ts.audit,
		Scheduler:       sched,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, callerID snowflake.ID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if callerID != 0 {
		req.Header.Set(HeaderUserID, callerID.String())
	}
	rec := httptest.NewRecorder()
	ts.engine.Engine().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.engine.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

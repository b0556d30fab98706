package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/dbtest"
	"github.com/smallbiznis/milkbill/internal/order/domain"
	"github.com/smallbiznis/milkbill/internal/order/repository"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	ownerrepo "github.com/smallbiznis/milkbill/internal/owner/repository"
	ownerservice "github.com/smallbiznis/milkbill/internal/owner/service"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	pricerepo "github.com/smallbiznis/milkbill/internal/price/repository"
	priceservice "github.com/smallbiznis/milkbill/internal/price/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	clk    *clock.FakeClock
	svc    domain.Service
	prices pricedomain.Service
	owners ownerdomain.Service
	admin  authorization.Caller
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()

	owners := ownerservice.New(ownerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: ownerrepo.Provide()})
	prices := priceservice.New(priceservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: pricerepo.Provide()})
	svc := New(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		PriceSvc: prices,
		OwnerSvc: owners,
	})

	admin, err := owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{Name: "Admin", Email: "admin@example.com", Role: "admin"})
	require.NoError(t, err)

	return &fixture{
		db:     db,
		clk:    clk,
		svc:    svc,
		prices: prices,
		owners: owners,
		admin:  authorization.Caller{ID: admin.ID, Role: authorization.RoleAdmin},
	}
}

func (f *fixture) company(t *testing.T, email string, skipDays []int) authorization.Caller {
	t.Helper()
	owner, err := f.owners.Create(context.Background(), ownerdomain.CreateOwnerRequest{
		Name:     "Company " + email,
		Email:    email,
		Role:     "company",
		SkipDays: skipDays,
	})
	require.NoError(t, err)
	return authorization.Caller{ID: owner.ID, Role: authorization.RoleCompany}
}

func (f *fixture) setPrice(t *testing.T, value int64, effective time.Time) {
	t.Helper()
	_, err := f.prices.SetPrice(context.Background(), pricedomain.SetPriceRequest{
		PricePerLiter: decimal.NewFromInt(value),
		EffectiveDate: &effective,
	})
	require.NoError(t, err)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func statusPtr(s domain.Status) *domain.Status { return &s }

func TestUpsertOrderRequiresPrice(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	company := f.company(t, "cafe@example.com", []int{})

	_, err := f.svc.UpsertOrder(context.Background(), company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 12),
		Quantity: decimal.NewFromInt(2),
	})
	assert.ErrorIs(t, err, pricedomain.ErrPriceNotSet)
}

func TestUpsertOrderFreezesPriceOnCreate(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	company := f.company(t, "cafe@example.com", []int{})
	f.setPrice(t, 50, date(2024, time.January, 1))

	order, err := f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 12),
		Quantity: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.True(t, order.PricePerUnit.Equal(decimal.NewFromInt(50)))

	f.setPrice(t, 60, date(2024, time.March, 10))

	replaced, err := f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 12),
		Quantity: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, replaced.ID)
	assert.True(t, replaced.Quantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, replaced.PricePerUnit.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, "orders", "owner_id = ?", company.ID))

	fresh, err := f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 13),
		Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.True(t, fresh.PricePerUnit.Equal(decimal.NewFromInt(60)))
}

func TestUpsertOrderCompanyRules(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	company := f.company(t, "cafe@example.com", []int{})
	other := f.company(t, "hotel@example.com", []int{})
	f.setPrice(t, 50, date(2024, time.January, 1))

	_, err := f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 10),
		Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrDateNotInFuture)

	_, err = f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 11),
		Quantity: decimal.NewFromInt(1),
		Status:   statusPtr(domain.StatusDelivered),
	})
	assert.ErrorIs(t, err, domain.ErrStatusNotAllowed)

	_, err = f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		OwnerID:  other.ID,
		Date:     date(2024, time.March, 11),
		Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 11),
		Quantity: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	bogus := domain.Status("delivered")
	_, err = f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 11),
		Quantity: decimal.NewFromInt(1),
		Status:   &bogus,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	cancelled, err := f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 11),
		Quantity: decimal.Zero,
		Status:   statusPtr(domain.StatusCancelled),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

func TestUpsertOrderAdminReplaceGatedByEditWindow(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	company := f.company(t, "cafe@example.com", []int{})
	f.setPrice(t, 50, date(2024, time.January, 1))

	order, err := f.svc.UpsertOrder(ctx, f.admin, domain.UpsertOrderRequest{
		OwnerID:  company.ID,
		Date:     date(2024, time.February, 5),
		Quantity: decimal.NewFromInt(2),
		Status:   statusPtr(domain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, order.Status)

	f.clk.Set(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))

	_, err = f.svc.UpsertOrder(ctx, f.admin, domain.UpsertOrderRequest{
		OwnerID:  company.ID,
		Date:     date(2024, time.February, 5),
		Quantity: decimal.NewFromInt(2),
		Status:   statusPtr(domain.StatusNotDelivered),
	})
	assert.ErrorIs(t, err, domain.ErrEditWindowClosed)

	// Creation in a closed month is still allowed for admins.
	created, err := f.svc.UpsertOrder(ctx, f.admin, domain.UpsertOrderRequest{
		OwnerID:  company.ID,
		Date:     date(2024, time.February, 6),
		Quantity: decimal.NewFromInt(1),
		Status:   statusPtr(domain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, created.Status)

	_, err = f.svc.UpsertOrder(ctx, f.admin, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 5),
		Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	company := f.company(t, "cafe@example.com", []int{})
	f.setPrice(t, 50, date(2024, time.January, 1))

	order, err := f.svc.UpsertOrder(ctx, f.admin, domain.UpsertOrderRequest{
		OwnerID:  company.ID,
		Date:     date(2024, time.March, 3),
		Quantity: decimal.NewFromInt(2),
	})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, company, order.ID, domain.StatusDelivered)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.SetStatus(ctx, f.admin, snowflake.ID(42), domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SetStatus(ctx, f.admin, order.ID, domain.Status("skipped"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	updated, err := f.svc.SetStatus(ctx, f.admin, order.ID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, updated.Status)

	f.clk.Set(time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC))
	_, err = f.svc.SetStatus(ctx, f.admin, order.ID, domain.StatusNotDelivered)
	assert.ErrorIs(t, err, domain.ErrEditWindowClosed)
}

func TestGenerateDefaults(t *testing.T) {
	// 2024-03-10 is a Sunday.
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	company := f.company(t, "cafe@example.com", []int{0})
	f.setPrice(t, 50, date(2024, time.January, 1))

	_, err := f.svc.GenerateDefaults(ctx, company, domain.GenerateDefaultsRequest{Days: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidDays)
	_, err = f.svc.GenerateDefaults(ctx, company, domain.GenerateDefaultsRequest{Days: 63})
	assert.ErrorIs(t, err, domain.ErrInvalidDays)

	_, err = f.svc.UpsertOrder(ctx, company, domain.UpsertOrderRequest{
		Date:     date(2024, time.March, 12),
		Quantity: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	// Mar 9..15: 9 and 10 are not in the future, 10 is a Sunday, 12 exists.
	created, err := f.svc.GenerateDefaults(ctx, company, domain.GenerateDefaultsRequest{
		StartDate: date(2024, time.March, 9),
		Days:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	kept, err := f.svc.List(ctx, company, domain.ListOrdersRequest{Date: ptrTime(date(2024, time.March, 12))})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.True(t, kept[0].Quantity.Equal(decimal.NewFromInt(5)))

	again, err := f.svc.GenerateDefaults(ctx, company, domain.GenerateDefaultsRequest{
		StartDate: date(2024, time.March, 9),
		Days:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, again)

	// Admins may backfill past dates.
	backfilled, err := f.svc.GenerateDefaults(ctx, f.admin, domain.GenerateDefaultsRequest{
		OwnerID:   company.ID,
		StartDate: date(2024, time.March, 4),
		Days:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, backfilled)
}

func TestListScopesCompanyCallers(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	cafe := f.company(t, "cafe@example.com", []int{})
	hotel := f.company(t, "hotel@example.com", []int{})
	f.setPrice(t, 50, date(2024, time.January, 1))

	for _, c := range []authorization.Caller{cafe, hotel} {
		_, err := f.svc.UpsertOrder(ctx, c, domain.UpsertOrderRequest{Date: date(2024, time.March, 11), Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
		_, err = f.svc.UpsertOrder(ctx, c, domain.UpsertOrderRequest{Date: date(2024, time.April, 2), Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	own, err := f.svc.List(ctx, cafe, domain.ListOrdersRequest{OwnerID: hotel.ID})
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, o := range own {
		assert.Equal(t, cafe.ID, o.OwnerID)
	}
	assert.True(t, own[0].OrderDate.After(own[1].OrderDate))

	march := mustMonth(t, "03-2024")
	all, err := f.svc.List(ctx, f.admin, domain.ListOrdersRequest{Month: &march})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func ptrTime(t time.Time) *time.Time { return &t }

package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/milkbill/internal/audit/domain"
	"github.com/smallbiznis/milkbill/internal/audit/repository"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/dbtest"
	obscontext "github.com/smallbiznis/milkbill/internal/observability/context"
	"github.com/smallbiznis/milkbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestAuditLogRecordsActorFromContext(t *testing.T) {
	svc, _ := setup(t)
	ctx := obscontext.WithActor(context.Background(), "1001", "admin")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	err := svc.AuditLog(ctx, "bill.status", "bill", "2002", map[string]any{"status": "Paid"})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "1001", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "2002", *entry.TargetID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Equal(t, "Paid", entry.Metadata["status"])
}

func TestAuditLogWithoutActorIsSystem(t *testing.T) {
	svc, _ := setup(t)
	ctx := obscontext.WithActor(context.Background(), "system", "cron")

	require.NoError(t, svc.AuditLog(ctx, "bill.generate_all", "", "", nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "system", resp.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
	assert.Nil(t, resp.AuditLogs[0].TargetID)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := setup(t)

	err := svc.AuditLog(context.Background(), "  ", "bill", "1", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, clk := setup(t)
	ctx := obscontext.WithActor(context.Background(), "1001", "admin")

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, "price.set", "price", "", nil))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(ctx, "order.status", "order", "77", nil))

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 3},
		Action:     "price.set",
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.True(t, first.PageInfo.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[2].CreatedAt))

	second, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 3, PageToken: first.PageInfo.NextPageToken},
		Action:     "price.set",
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.False(t, second.PageInfo.HasMore)

	byTarget, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: "order", TargetID: "77"})
	require.NoError(t, err)
	require.Len(t, byTarget.AuditLogs, 1)
	assert.Equal(t, "order.status", byTarget.AuditLogs[0].Action)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, clk := setup(t)
	start := clk.Now()
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

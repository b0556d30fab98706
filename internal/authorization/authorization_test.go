package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin := Caller{ID: 1, Role: RoleAdmin}
	company := Caller{ID: 2, Role: RoleCompany}

	assert.NoError(t, svc.Authorize(ctx, admin, ObjectBill, ActionBillGenerate))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectScheduler, ActionSchedulerManage))
	assert.NoError(t, svc.Authorize(ctx, company, ObjectOrder, ActionOrderWrite))
	assert.NoError(t, svc.Authorize(ctx, company, ObjectPayment, ActionPaymentVerify))

	assert.ErrorIs(t, svc.Authorize(ctx, company, ObjectBill, ActionBillGenerate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, company, ObjectPayment, ActionPaymentManual), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, company, ObjectOrder, ActionOrderStatus), ErrForbidden)
}

func TestAuthorizeSystemInheritsAdmin(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Authorize(context.Background(), SystemCaller, ObjectBill, ActionBillGenerate))
}

func TestAuthorizeRequiresIdentity(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.Authorize(context.Background(), Caller{}, ObjectOrder, ActionOrderView), ErrUnauthorized)
	assert.ErrorIs(t, svc.Authorize(context.Background(), Caller{Role: RoleCompany}, ObjectOrder, ActionOrderView), ErrUnauthorized)
}

func TestCallerContext(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{ID: 5, Role: RoleCompany})
	caller, ok := CallerFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, RoleCompany, caller.Role)
	assert.False(t, caller.IsPrivileged())

	_, ok = CallerFromContext(context.Background())
	assert.False(t, ok)

	role, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
	_, err = ParseRole("system")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrder        = "order"
	ObjectPrice        = "price"
	ObjectBill         = "bill"
	ObjectPayment      = "payment"
	ObjectNotification = "notification"
	ObjectOwner        = "owner"
	ObjectScheduler    = "scheduler"
	ObjectAudit        = "audit"
)

const (
	ActionOrderView   = "order.view"
	ActionOrderWrite  = "order.write"
	ActionOrderStatus = "order.status"

	ActionPriceView  = "price.view"
	ActionPriceWrite = "price.write"

	ActionBillView     = "bill.view"
	ActionBillGenerate = "bill.generate"
	ActionBillStatus   = "bill.status"

	ActionPaymentView   = "payment.view"
	ActionPaymentVerify = "payment.verify"
	ActionPaymentManual = "payment.manual"

	ActionNotificationView = "notification.view"

	ActionOwnerSettings = "owner.settings"

	ActionSchedulerManage = "scheduler.manage"

	ActionAuditView = "audit.view"
)

// Service decides whether a caller may perform an action.
type Service interface {
	Authorize(ctx context.Context, caller Caller, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from the casbin_rule table and seeds the defaults.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer with the default policies and no storage.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, caller Caller, object, action string) error {
	if caller.Role == "" || (caller.Role != RoleSystem && caller.ID == 0) {
		return ErrUnauthorized
	}

	allowed, err := s.enforcer.Enforce(caller.subject(), strings.TrimSpace(object), strings.TrimSpace(action))
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("role", string(caller.Role)),
			zap.String("caller_id", caller.ID.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", "*"},

		{"role:company", ObjectOrder, ActionOrderView},
		{"role:company", ObjectOrder, ActionOrderWrite},
		{"role:company", ObjectPrice, ActionPriceView},
		{"role:company", ObjectBill, ActionBillView},
		{"role:company", ObjectPayment, ActionPaymentVerify},
		{"role:company", ObjectPayment, ActionPaymentView},
		{"role:company", ObjectOwner, ActionOwnerSettings},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy("role:system", "role:admin")
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy("role:system", "role:admin"); err != nil {
			return err
		}
	}
	return nil
}

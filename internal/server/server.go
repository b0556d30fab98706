package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/milkbill/internal/audit"
	auditdomain "github.com/smallbiznis/milkbill/internal/audit/domain"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/billing"
	billingdomain "github.com/smallbiznis/milkbill/internal/billing/domain"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/gateway"
	"github.com/smallbiznis/milkbill/internal/notification"
	notificationdomain "github.com/smallbiznis/milkbill/internal/notification/domain"
	"github.com/smallbiznis/milkbill/internal/observability"
	obslogger "github.com/smallbiznis/milkbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/milkbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/milkbill/internal/observability/tracing"
	"github.com/smallbiznis/milkbill/internal/order"
	orderdomain "github.com/smallbiznis/milkbill/internal/order/domain"
	"github.com/smallbiznis/milkbill/internal/owner"
	ownerdomain "github.com/smallbiznis/milkbill/internal/owner/domain"
	"github.com/smallbiznis/milkbill/internal/payment"
	paymentdomain "github.com/smallbiznis/milkbill/internal/payment/domain"
	"github.com/smallbiznis/milkbill/internal/price"
	pricedomain "github.com/smallbiznis/milkbill/internal/price/domain"
	"github.com/smallbiznis/milkbill/internal/providers"
	"github.com/smallbiznis/milkbill/internal/ratelimit"
	"github.com/smallbiznis/milkbill/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	owner.Module,
	price.Module,
	order.Module,
	gateway.Module,
	providers.Module,
	notification.Module,
	billing.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	clock           clock.Clock
	authzSvc        authorization.Service
	ownerSvc        ownerdomain.Service
	priceSvc        pricedomain.Service
	orderSvc        orderdomain.Service
	billingSvc      billingdomain.Service
	paymentSvc      paymentdomain.Service
	notificationSvc notificationdomain.Service
	auditSvc        auditdomain.Service
	scheduler       *scheduler.Scheduler
	verifyLimiter   *ratelimit.VerifyLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Clock           clock.Clock
	AuthzSvc        authorization.Service
	OwnerSvc        ownerdomain.Service
	PriceSvc        pricedomain.Service
	OrderSvc        orderdomain.Service
	BillingSvc      billingdomain.Service
	PaymentSvc      paymentdomain.Service
	NotificationSvc notificationdomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
	Scheduler       *scheduler.Scheduler
	VerifyLimiter   *ratelimit.VerifyLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		clock:           p.Clock,
		authzSvc:        p.AuthzSvc,
		ownerSvc:        p.OwnerSvc,
		priceSvc:        p.PriceSvc,
		orderSvc:        p.OrderSvc,
		billingSvc:      p.BillingSvc,
		paymentSvc:      p.PaymentSvc,
		notificationSvc: p.NotificationSvc,
		auditSvc:        p.AuditSvc,
		scheduler:       p.Scheduler,
		verifyLimiter:   p.VerifyLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.CallerRequired())

	// -------- Orders --------
	api.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.ListOrders)
	api.POST("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderWrite), s.UpsertOrder)
	api.POST("/orders/generate", s.authorize(authorization.ObjectOrder, authorization.ActionOrderWrite), s.GenerateDefaultOrders)

	// -------- Pricing --------
	api.GET("/pricing", s.authorize(authorization.ObjectPrice, authorization.ActionPriceView), s.GetPricing)

	// -------- Bills --------
	api.GET("/bills", s.authorize(authorization.ObjectBill, authorization.ActionBillView), s.ListBills)
	api.GET("/bills/:id", s.authorize(authorization.ObjectBill, authorization.ActionBillView), s.GetBill)
	api.GET("/bills/:id/statement", s.authorize(authorization.ObjectBill, authorization.ActionBillView), s.RenderStatement)

	// -------- Payments --------
	api.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)
	api.POST("/payments/verify", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentVerify), s.VerifyRateLimit(), s.VerifyPayment)

	// -------- Settings --------
	api.GET("/settings", s.authorize(authorization.ObjectOwner, authorization.ActionOwnerSettings), s.GetSettings)
	api.PUT("/settings", s.authorize(authorization.ObjectOwner, authorization.ActionOwnerSettings), s.UpdateSettings)

	// -------- Notifications --------
	api.GET("/notifications", s.authorize(authorization.ObjectNotification, authorization.ActionNotificationView), s.ListNotifications)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.CallerRequired())

	admin.PATCH("/orders/:id/status", s.authorize(authorization.ObjectOrder, authorization.ActionOrderStatus), s.SetOrderStatus)

	admin.POST("/pricing", s.authorize(authorization.ObjectPrice, authorization.ActionPriceWrite), s.SetPrice)

	admin.POST("/bills/generate", s.authorize(authorization.ObjectBill, authorization.ActionBillGenerate), s.GenerateBill)
	admin.POST("/bills/generate-all", s.authorize(authorization.ObjectBill, authorization.ActionBillGenerate), s.GenerateAllBills)
	admin.PATCH("/bills/:id/status", s.authorize(authorization.ObjectBill, authorization.ActionBillStatus), s.SetBillStatus)

	admin.POST("/payments/manual", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentManual), s.RecordManualPayment)

	admin.POST("/scheduler/start", s.authorize(authorization.ObjectScheduler, authorization.ActionSchedulerManage), s.StartScheduler)
	admin.POST("/scheduler/stop", s.authorize(authorization.ObjectScheduler, authorization.ActionSchedulerManage), s.StopScheduler)
	admin.GET("/scheduler/status", s.authorize(authorization.ObjectScheduler, authorization.ActionSchedulerManage), s.SchedulerStatus)

	admin.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	// Authenticated by the gateway signature, not by a caller.
	s.engine.POST("/api/webhooks/razorpay", s.HandleRazorpayWebhook)

	cron := s.engine.Group("/api/cron", s.CronAuthRequired())
	cron.GET("/monthly-billing", s.CronMonthlyBilling)
	cron.GET("/reminders", s.CronReminders)
}

package main

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/authorization"
	"github.com/smallbiznis/milkbill/internal/billing"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/gateway"
	"github.com/smallbiznis/milkbill/internal/lock"
	"github.com/smallbiznis/milkbill/internal/notification"
	"github.com/smallbiznis/milkbill/internal/observability"
	"github.com/smallbiznis/milkbill/internal/order"
	"github.com/smallbiznis/milkbill/internal/owner"
	"github.com/smallbiznis/milkbill/internal/price"
	"github.com/smallbiznis/milkbill/internal/providers"
	"github.com/smallbiznis/milkbill/internal/scheduler"
	"github.com/smallbiznis/milkbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by scheduler
		authorization.Module,
		owner.Module,
		price.Module,
		order.Module,
		gateway.Module,
		providers.Module,
		notification.Module,
		billing.Module,

		// No server module!
		scheduler.Module,
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// StartScheduler runs the loop even when SCHEDULER_AUTOSTART is off; this
// binary has no other purpose.
func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Start(ctx); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
				return err
			}
			return nil
		},
	})
}

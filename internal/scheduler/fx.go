package scheduler

import (
	"context"
	"errors"

	"github.com/smallbiznis/milkbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.SchedulerAutoStart {
				return nil
			}
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := sched.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
				return err
			}
			return nil
		},
	})
}

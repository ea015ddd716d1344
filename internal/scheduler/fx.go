package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(DefaultConfig),
	fx.Provide(New),
	fx.Invoke(runScheduler),
)

// AsJob registers a job constructor with the scheduler.
func AsJob(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"scheduler.jobs"`))
}

func runScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

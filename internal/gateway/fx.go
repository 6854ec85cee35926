package gateway

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(
		NewDiscordClient,
		NewDispatcher,
	),
	fx.Invoke(StartDispatcher),
)

func StartDispatcher(lc fx.Lifecycle, client Client, dispatcher *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Open(ctx); err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(context.Background())
			go dispatcher.Run(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return client.Close()
				},
			})

			return nil
		},
	})
}

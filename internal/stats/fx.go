package stats

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("stats",
	fx.Provide(New),
	fx.Invoke(StartExporter),
)

func StartExporter(lc fx.Lifecycle, exporter *Exporter) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go exporter.Run(runCtx)

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

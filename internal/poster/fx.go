package poster

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("poster",
	fx.Provide(New),
	fx.Invoke(StartPoster),
)

func StartPoster(lc fx.Lifecycle, poster *Poster) {
	if !poster.Enabled() {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go poster.Run(runCtx)

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

package benefit

import "go.uber.org/fx"

var Module = fx.Module("benefit",
	fx.Provide(New),
)

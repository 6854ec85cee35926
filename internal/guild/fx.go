package guild

import (
	"github.com/trello-talk/tacows/internal/guild/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("guild",
	fx.Provide(repository.Provide),
)

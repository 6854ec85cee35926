package webhook

import (
	"github.com/trello-talk/tacows/internal/webhook/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(repository.Provide),
)

package entitlement

import (
	"github.com/trello-talk/tacows/internal/entitlement/repository"
	"github.com/trello-talk/tacows/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/trello-talk/tacows/internal/benefit"
	"github.com/trello-talk/tacows/internal/cache"
	"github.com/trello-talk/tacows/internal/clock"
	"github.com/trello-talk/tacows/internal/config"
	"github.com/trello-talk/tacows/internal/entitlement"
	"github.com/trello-talk/tacows/internal/gateway"
	"github.com/trello-talk/tacows/internal/guild"
	"github.com/trello-talk/tacows/internal/migration"
	"github.com/trello-talk/tacows/internal/notify"
	"github.com/trello-talk/tacows/internal/observability"
	"github.com/trello-talk/tacows/internal/poster"
	"github.com/trello-talk/tacows/internal/server"
	"github.com/trello-talk/tacows/internal/stats"
	"github.com/trello-talk/tacows/internal/sweeper"
	"github.com/trello-talk/tacows/internal/webhook"
	"github.com/trello-talk/tacows/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,

		entitlement.Module,
		guild.Module,
		webhook.Module,
		benefit.Module,
		notify.Module,
		sweeper.Module,
		gateway.Module,
		stats.Module,
		poster.Module,

		server.Module,
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

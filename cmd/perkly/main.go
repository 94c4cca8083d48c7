package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perkly/internal/clock"
	"github.com/smallbiznis/perkly/internal/config"
	"github.com/smallbiznis/perkly/internal/migration"
	"github.com/smallbiznis/perkly/internal/observability"
	"github.com/smallbiznis/perkly/internal/scheduler"
	"github.com/smallbiznis/perkly/internal/server"
	"github.com/smallbiznis/perkly/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP surface and feature modules
		server.Module,

		// Background jobs and schema
		scheduler.Module,
		migration.Module,
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

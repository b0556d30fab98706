package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/milkbill/internal/clock"
	"github.com/smallbiznis/milkbill/internal/config"
	"github.com/smallbiznis/milkbill/internal/lock"
	"github.com/smallbiznis/milkbill/internal/migration"
	"github.com/smallbiznis/milkbill/internal/observability"
	"github.com/smallbiznis/milkbill/internal/scheduler"
	"github.com/smallbiznis/milkbill/internal/server"
	"github.com/smallbiznis/milkbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// HTTP API plus every domain service it serves.
		server.Module,

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

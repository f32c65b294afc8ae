package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
)

// Module provides the DBConnectionResolver over the dialect providers registered in the
// db_providers group, and closes every connection on stop.
var Module = fx.Module("database",
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				r.CloseAll()
				return nil
			},
		})
	}),
)

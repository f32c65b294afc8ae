package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
)

// Module contributes the local provider to the group:"storage_providers" collection.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)

package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// Module provides the in-memory store as the repository.ExecutionRepository.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryExecutionRepository,
			fx.As(new(repository.ExecutionRepository)),
		),
	),
)

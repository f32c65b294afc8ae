package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/listener"
)

// Module contributes the logging listeners to the listener groups.
var Module = fx.Module("logging_listeners",
	fx.Provide(
		fx.Annotate(NewLoggingJobListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(listener.JobListenerGroup)),
		fx.Annotate(NewLoggingStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(listener.StepListenerGroup)),
		fx.Annotate(NewLoggingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(listener.ChunkListenerGroup)),
		fx.Annotate(NewLoggingSkipListener, fx.As(new(port.SkipListener)), fx.ResultTags(listener.SkipListenerGroup)),
	),
)

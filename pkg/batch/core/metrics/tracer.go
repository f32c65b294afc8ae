package metrics

import (
	"context"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// Tracer opens spans for jobs, steps and chunks. The returned func ends the span.
type Tracer interface {
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	StartStepSpan(ctx context.Context, state *model.ExecutionState) (context.Context, func())
	StartChunkSpan(ctx context.Context, stepName string, chunk int) (context.Context, func())
	// RecordError attaches err to the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

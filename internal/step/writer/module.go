package writer

import (
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	"github.com/tigerroll/customer-batch/pkg/batch/component/item"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-batch/pkg/batch/engine/step/retry"
)

const retryInitialInterval = 200 * time.Millisecond

// newWriterFromConfig wraps the customer writer in a RetryingItemWriter when
// batch.write_retry.max_attempts is set.
func newWriterFromConfig(cfg *config.Config, recorder metrics.MetricRecorder) port.ItemWriter[entity.Customer] {
	w := NewCustomerWriter()
	rc := cfg.Batch.WriteRetry
	if rc.MaxAttempts <= 0 {
		return w
	}
	policy := retry.NewRetryPolicy(rc.MaxAttempts, retryInitialInterval, rc.RetryableErrors)
	return item.NewRetryingItemWriter[entity.Customer](cfg.Batch.StepName, w, policy, recorder)
}

// Module provides the customer writer as a port.ItemWriter.
var Module = fx.Module("customer_writer", fx.Provide(newWriterFromConfig))

package processor

import (
	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	"github.com/tigerroll/customer-batch/pkg/batch/component/item"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

// newProcessorFromConfig falls back to the pass-through processor when no option is enabled.
func newProcessorFromConfig(cfg *config.Config) port.ItemProcessor[entity.Customer, entity.Customer] {
	pc := cfg.Batch.Processor
	if !pc.TrimSpace && !pc.RequireCountry {
		return item.NewPassThroughItemProcessor[entity.Customer]()
	}
	return NewCustomerProcessor(pc)
}

// Module provides the customer processor as a port.ItemProcessor.
var Module = fx.Module("customer_processor", fx.Provide(newProcessorFromConfig))

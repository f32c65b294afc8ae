package mapper

import (
	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func newMapperFromConfig(cfg *config.Config) (port.RecordMapper[entity.Customer], error) {
	return NewCustomerMapper(cfg.Batch.Source.FieldNames, cfg.Batch.Mapper.DobLayout)
}

// Module provides the customer mapper as a port.RecordMapper[entity.Customer].
var Module = fx.Module("customer_mapper", fx.Provide(newMapperFromConfig))

// Package processor normalises mapped customers before they are written.
package processor

import (
	"context"
	"strings"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

// CustomerProcessor trims surrounding whitespace from the text fields and, when RequireCountry
// is set, filters out customers without a country. It holds no mutable state, so one instance
// serves every processing worker.
type CustomerProcessor struct {
	TrimSpace      bool
	RequireCountry bool
}

var _ port.ItemProcessor[entity.Customer, entity.Customer] = (*CustomerProcessor)(nil)

// NewCustomerProcessor returns a processor configured from batch.processor.
func NewCustomerProcessor(cfg config.ProcessorConfig) *CustomerProcessor {
	return &CustomerProcessor{TrimSpace: cfg.TrimSpace, RequireCountry: cfg.RequireCountry}
}

// Process implements port.ItemProcessor.
func (p *CustomerProcessor) Process(ctx context.Context, c entity.Customer) (entity.Customer, error) {
	if p.TrimSpace {
		for _, f := range []*string{&c.FirstName, &c.LastName, &c.Email, &c.Gender, &c.ContactNo, &c.Country, &c.Dob} {
			*f = strings.TrimSpace(*f)
		}
	}
	if p.RequireCountry && strings.TrimSpace(c.Country) == "" {
		return c, port.ErrSkipItem
	}
	return c, nil
}

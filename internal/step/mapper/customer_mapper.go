// Package mapper binds the columns of a customers CSV record to entity.Customer.
package mapper

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	fieldmapper "github.com/tigerroll/customer-batch/pkg/batch/component/step/mapper"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// customerBindings returns the setter for every customer column. dobLayout, when not empty,
// is the time layout a non-empty dob must parse with.
func customerBindings(dobLayout string) []fieldmapper.FieldBinding[entity.Customer] {
	return []fieldmapper.FieldBinding[entity.Customer]{
		{Name: "id", Required: true, Set: func(c *entity.Customer, v string) error {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			c.ID = id
			return nil
		}},
		{Name: "firstName", Set: func(c *entity.Customer, v string) error { c.FirstName = v; return nil }},
		{Name: "lastName", Set: func(c *entity.Customer, v string) error { c.LastName = v; return nil }},
		{Name: "email", Set: func(c *entity.Customer, v string) error { c.Email = v; return nil }},
		{Name: "gender", Set: func(c *entity.Customer, v string) error { c.Gender = v; return nil }},
		{Name: "contactNo", Set: func(c *entity.Customer, v string) error { c.ContactNo = v; return nil }},
		{Name: "country", Set: func(c *entity.Customer, v string) error { c.Country = v; return nil }},
		{Name: "dob", Set: func(c *entity.Customer, v string) error {
			if v != "" && dobLayout != "" {
				if _, err := time.Parse(dobLayout, v); err != nil {
					return fmt.Errorf("does not match layout %q", dobLayout)
				}
			}
			c.Dob = v
			return nil
		}},
	}
}

// NewCustomerMapper builds the mapper for the given column layout. Columns of the layout
// that are not customer fields are ignored; customer fields missing from the layout stay
// empty. The layout must contain "id".
func NewCustomerMapper(fieldNames []string, dobLayout string) (*fieldmapper.FieldSetMapper[entity.Customer], error) {
	present := make(map[string]bool, len(fieldNames))
	for _, name := range fieldNames {
		present[name] = true
	}
	if !present["id"] {
		return nil, exception.NewConfigError("batch.source.field_names", "must contain %q", "id")
	}

	var bindings []fieldmapper.FieldBinding[entity.Customer]
	for _, b := range customerBindings(dobLayout) {
		if present[b.Name] {
			bindings = append(bindings, b)
		}
	}
	return fieldmapper.NewFieldSetMapper(fieldNames, bindings...)
}

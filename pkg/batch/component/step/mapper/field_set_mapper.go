// Package mapper turns tokenized records into typed items by binding named columns to setters.
package mapper

import (
	"fmt"

	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// FieldBinding assigns the column called Name to an item of type T.
type FieldBinding[T any] struct {
	Name string
	// Required rejects records where the column is missing or empty.
	Required bool
	Set      func(item *T, value string) error
}

// FieldSetMapper maps a record positionally: field i is the column fieldNames[i]. Missing
// trailing fields read as empty and extra fields are ignored.
type FieldSetMapper[T any] struct {
	fieldNames []string
	bindings   []FieldBinding[T]
	positions  []int
}

var _ port.RecordMapper[struct{}] = (*FieldSetMapper[struct{}])(nil)

// NewFieldSetMapper checks that every binding names a column of fieldNames.
func NewFieldSetMapper[T any](fieldNames []string, bindings ...FieldBinding[T]) (*FieldSetMapper[T], error) {
	index := make(map[string]int, len(fieldNames))
	for i, name := range fieldNames {
		if _, dup := index[name]; dup {
			return nil, exception.NewConfigError("batch.source.field_names", "duplicate field name %q", name)
		}
		index[name] = i
	}

	positions := make([]int, len(bindings))
	for i, b := range bindings {
		pos, ok := index[b.Name]
		if !ok {
			return nil, exception.NewConfigError("batch.source.field_names", "no column named %q", b.Name)
		}
		if b.Set == nil {
			return nil, fmt.Errorf("binding for %q has no setter", b.Name)
		}
		positions[i] = pos
	}
	return &FieldSetMapper[T]{
		fieldNames: append([]string(nil), fieldNames...),
		bindings:   bindings,
		positions:  positions,
	}, nil
}

// FieldNames returns the column layout.
func (m *FieldSetMapper[T]) FieldNames() []string {
	return append([]string(nil), m.fieldNames...)
}

// Map implements port.RecordMapper. Failures are *exception.MappingError carrying the record.
func (m *FieldSetMapper[T]) Map(record model.RawRecord) (T, error) {
	var item T
	for i, b := range m.bindings {
		value := record.Field(m.positions[i])
		if b.Required && value == "" {
			var zero T
			return zero, exception.NewMappingError(record.Line, record.Fields, fmt.Errorf("field %q is required", b.Name))
		}
		if err := b.Set(&item, value); err != nil {
			var zero T
			return zero, exception.NewMappingError(record.Line, record.Fields, fmt.Errorf("field %q: %w", b.Name, err))
		}
	}
	return item, nil
}

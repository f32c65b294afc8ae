package mapper

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

type person struct {
	ID   int
	Name string
	Age  int
}

func personBindings() []FieldBinding[person] {
	return []FieldBinding[person]{
		{Name: "id", Required: true, Set: func(p *person, v string) error {
			n, err := strconv.Atoi(v)
			p.ID = n
			return err
		}},
		{Name: "name", Set: func(p *person, v string) error { p.Name = v; return nil }},
		{Name: "age", Set: func(p *person, v string) error {
			if v == "" {
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.New("age must be a number")
			}
			p.Age = n
			return nil
		}},
	}
}

func TestFieldSetMapper_Map(t *testing.T) {
	m, err := NewFieldSetMapper([]string{"id", "name", "age"}, personBindings()...)
	require.NoError(t, err)

	p, err := m.Map(model.RawRecord{Line: 2, Fields: []string{"7", "Ann", "41"}})
	require.NoError(t, err)
	assert.Equal(t, person{ID: 7, Name: "Ann", Age: 41}, p)

	// short record: missing trailing columns read as empty
	p, err = m.Map(model.RawRecord{Line: 3, Fields: []string{"8", "Bob"}})
	require.NoError(t, err)
	assert.Equal(t, person{ID: 8, Name: "Bob"}, p)

	// extra columns are ignored
	p, err = m.Map(model.RawRecord{Line: 4, Fields: []string{"9", "Cy", "3", "extra"}})
	require.NoError(t, err)
	assert.Equal(t, 9, p.ID)
}

func TestFieldSetMapper_Errors(t *testing.T) {
	m, err := NewFieldSetMapper([]string{"id", "name", "age"}, personBindings()...)
	require.NoError(t, err)

	_, err = m.Map(model.RawRecord{Line: 5, Fields: []string{"", "Ann"}})
	var me *exception.MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 5, me.Line)
	assert.Contains(t, err.Error(), `field "id" is required`)

	_, err = m.Map(model.RawRecord{Line: 6, Fields: []string{"1", "Ann", "old"}})
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []string{"1", "Ann", "old"}, me.RawRecord)
	assert.Contains(t, err.Error(), "age must be a number")
}

func TestNewFieldSetMapper_Layout(t *testing.T) {
	_, err := NewFieldSetMapper([]string{"id", "name"}, personBindings()...)
	assert.True(t, exception.IsConfigError(err))

	_, err = NewFieldSetMapper([]string{"id", "id"}, personBindings()[0])
	assert.True(t, exception.IsConfigError(err))

	// columns without a binding are allowed
	m, err := NewFieldSetMapper([]string{"id", "skip", "name"}, personBindings()[:2]...)
	require.NoError(t, err)
	p, err := m.Map(model.RawRecord{Fields: []string{"1", "x", "Ann"}})
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, []string{"id", "skip", "name"}, m.FieldNames())
}

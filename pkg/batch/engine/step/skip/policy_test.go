package skip

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

func mappingErr(line int) error {
	return exception.NewMappingError(line, []string{"", "x"}, errors.New("id is required"))
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(mappingErr(2)))
	assert.True(t, IsSkippable(fmt.Errorf("wrapped: %w", mappingErr(2))))
	assert.True(t, IsSkippable(exception.NewBatchError("mapper", "bad", nil, true, false)))
	assert.False(t, IsSkippable(exception.NewBatchError("mapper", "bad", nil, false, false)))
	assert.False(t, IsSkippable(exception.NewSourceError(4, errors.New("eio"))))
	assert.False(t, IsSkippable(exception.NewWriteError(0, errors.New("constraint"))))
	assert.False(t, IsSkippable(nil))
}

func TestFailOnErrorPolicy(t *testing.T) {
	p, err := NewSkipPolicy("FAIL_ON_ERROR", 5)
	require.NoError(t, err)
	assert.Equal(t, "FAIL_ON_ERROR", p.Name())
	assert.False(t, p.ShouldSkip(mappingErr(3)))

	def, err := NewSkipPolicy("", 0)
	require.NoError(t, err)
	assert.Equal(t, "FAIL_ON_ERROR", def.Name())
}

func TestSkipAndContinuePolicy_Unlimited(t *testing.T) {
	p, err := NewSkipPolicy("SKIP_AND_CONTINUE", 0)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.True(t, p.ShouldSkip(mappingErr(i)))
		p.RecordSkip()
	}
	assert.Equal(t, 100, p.GetSkipCount())
	assert.False(t, p.ShouldSkip(exception.NewSourceError(1, errors.New("eio"))))
}

func TestSkipAndContinuePolicy_Limit(t *testing.T) {
	p, err := NewSkipPolicy("skip_and_continue", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.GetSkipLimit())

	assert.True(t, p.ShouldSkip(mappingErr(1)))
	p.RecordSkip()
	assert.True(t, p.ShouldSkip(mappingErr(2)))
	p.RecordSkip()
	assert.False(t, p.ShouldSkip(mappingErr(3)))
}

func TestNewSkipPolicy_Invalid(t *testing.T) {
	_, err := NewSkipPolicy("RETRY_FOREVER", 0)
	assert.True(t, exception.IsConfigError(err))

	_, err = NewSkipPolicy("SKIP_AND_CONTINUE", -1)
	assert.True(t, exception.IsConfigError(err))
}

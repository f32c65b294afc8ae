// Package skip decides whether a per-record failure aborts the step or is counted and ignored.
package skip

import (
	"errors"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
)

// SkipPolicy is consulted by the chunk step for every record-level failure.
// A policy instance belongs to one step execution and is not safe for concurrent use.
type SkipPolicy interface {
	// ShouldSkip reports whether err may be skipped given the skips recorded so far.
	ShouldSkip(err error) bool
	// RecordSkip counts one skip.
	RecordSkip()
	GetSkipCount() int
	// GetSkipLimit returns the maximum number of skips, 0 meaning unlimited.
	GetSkipLimit() int
	Name() string
}

// NewSkipPolicy builds the policy named by batch.skip_policy.
func NewSkipPolicy(name string, skipLimit int) (SkipPolicy, error) {
	policy, err := config.ParseSkipPolicy(name)
	if err != nil {
		return nil, err
	}
	if skipLimit < 0 {
		return nil, exception.NewConfigError("batch.skip_limit", "must not be negative, got %d", skipLimit)
	}
	if policy == config.SkipPolicySkipAndContinue {
		return &skipAndContinuePolicy{skipLimit: skipLimit}, nil
	}
	return &failOnErrorPolicy{}, nil
}

// IsSkippable reports whether err is a record-level failure: a mapping error, or a BatchError
// flagged skippable. Source and write errors are never skippable.
func IsSkippable(err error) bool {
	if err == nil || exception.IsSourceError(err) || exception.IsWriteError(err) {
		return false
	}
	if exception.IsMappingError(err) {
		return true
	}
	var be *exception.BatchError
	return errors.As(err, &be) && be.IsSkippable()
}

type failOnErrorPolicy struct{}

func (p *failOnErrorPolicy) ShouldSkip(error) bool { return false }
func (p *failOnErrorPolicy) RecordSkip()           {}
func (p *failOnErrorPolicy) GetSkipCount() int     { return 0 }
func (p *failOnErrorPolicy) GetSkipLimit() int     { return 0 }
func (p *failOnErrorPolicy) Name() string          { return config.SkipPolicyFailOnError }

type skipAndContinuePolicy struct {
	skipLimit int
	skipCount int
}

func (p *skipAndContinuePolicy) ShouldSkip(err error) bool {
	if !IsSkippable(err) {
		return false
	}
	return p.skipLimit == 0 || p.skipCount < p.skipLimit
}

func (p *skipAndContinuePolicy) RecordSkip()       { p.skipCount++ }
func (p *skipAndContinuePolicy) GetSkipCount() int { return p.skipCount }
func (p *skipAndContinuePolicy) GetSkipLimit() int { return p.skipLimit }
func (p *skipAndContinuePolicy) Name() string      { return config.SkipPolicySkipAndContinue }

var (
	_ SkipPolicy = (*failOnErrorPolicy)(nil)
	_ SkipPolicy = (*skipAndContinuePolicy)(nil)
)

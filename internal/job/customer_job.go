// Package job assembles the customer import job: one chunk-oriented step reading the
// customers CSV and upserting it into the target database.
package job

import (
	"unicode/utf8"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/component/step/reader"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	jobRunner "github.com/tigerroll/customer-batch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-batch/pkg/batch/engine/step/item"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// CustomerJobParams are the components the customer job is built from.
type CustomerJobParams struct {
	fx.In
	Cfg             *config.Config
	StorageResolver storageAdapter.StorageConnectionResolver
	DBResolver      database.DBConnectionResolver
	Mapper          port.RecordMapper[entity.Customer]
	Processor       port.ItemProcessor[entity.Customer, entity.Customer]
	Writer          port.ItemWriter[entity.Customer]
	Repository      repository.ExecutionRepository
	Recorder        metrics.MetricRecorder
	Tracer          metrics.Tracer
	StepListeners   []port.StepExecutionListener `group:"step_listeners"`
	ChunkListeners  []port.ChunkListener         `group:"chunk_listeners"`
	SkipListeners   []port.SkipListener          `group:"skip_listeners"`
}

// NewCustomerStep builds the chunk step from batch.* configuration.
func NewCustomerStep(p CustomerJobParams) (*item.ChunkStep[entity.Customer, entity.Customer], error) {
	b := p.Cfg.Batch
	delimiter, _ := utf8.DecodeRuneInString(b.Source.Delimiter)

	source, err := reader.NewCSVRecordSource(
		reader.StorageOpener(p.StorageResolver, b.Source.StorageRef, b.Source.Bucket, b.Source.Object),
		reader.CSVOptions{
			Name:            b.Source.Object,
			Delimiter:       delimiter,
			SkipHeaderLines: b.Source.SkipHeaderLines,
		},
	)
	if err != nil {
		return nil, err
	}

	step := item.NewChunkStep(
		b.StepName,
		source,
		p.Mapper,
		p.Processor,
		p.Writer,
		gormadapter.NewGormTransactionManager(p.DBResolver, b.TargetDBRef),
		item.Options{
			ChunkSize:         b.ChunkSize,
			ProcessingWorkers: b.ProcessingWorkers,
			ResumeOffset:      b.Source.ResumeOffset,
			SkipPolicy:        b.SkipPolicy,
			SkipLimit:         b.SkipLimit,
			IsolationLevel:    b.IsolationLevel,
			Listeners: port.StepListeners{
				Step:  p.StepListeners,
				Chunk: p.ChunkListeners,
				Skip:  p.SkipListeners,
			},
			MetricRecorder: p.Recorder,
			Tracer:         p.Tracer,
			Repository:     p.Repository,
		},
	)
	logger.Debugf("Step '%s' reads '%s' from storage '%s' and writes to database '%s'.",
		b.StepName, b.Source.Object, b.Source.StorageRef, b.TargetDBRef)
	return step, nil
}

// NewCustomerJob returns the job named batch.job_name with the customer step as its only step.
func NewCustomerJob(p CustomerJobParams) (port.Job, error) {
	step, err := NewCustomerStep(p)
	if err != nil {
		return nil, err
	}
	return jobRunner.NewSimpleJob(p.Cfg.Batch.JobName, step), nil
}

// Module provides the customer job as a port.Job.
var Module = fx.Module("customer_job", fx.Provide(NewCustomerJob))

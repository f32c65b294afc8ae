// Package app wires the customer batch application with fx and runs the job once.
package app

import (
	"context"
	"io/fs"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	"github.com/tigerroll/customer-batch/internal/job"
	"github.com/tigerroll/customer-batch/internal/step/mapper"
	"github.com/tigerroll/customer-batch/internal/step/processor"
	"github.com/tigerroll/customer-batch/internal/step/writer"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/sqlite"
	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/customer-batch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	jobRunner "github.com/tigerroll/customer-batch/pkg/batch/core/job/runner"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/customer-batch/pkg/batch/listener/logging"
	"github.com/tigerroll/customer-batch/pkg/batch/listener/rejects"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// DBProviderModules maps a database type to the module contributing its DBProvider.
var DBProviderModules = map[string]fx.Option{
	sqlite.Type:   sqlite.Module,
	postgres.Type: postgres.Module,
	mysql.Type:    mysql.Module,
}

const stopTimeout = 30 * time.Second

// Options returns every fx option of the application except the launcher.
func Options(envFilePath string, embeddedConfig config.EmbeddedConfig, migrationFS fs.FS, dbProviderOptions []fx.Option) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Provide(fx.Annotate(
			func() fs.FS { return migrationFS },
			fx.ResultTags(migration.MigrationFSTag),
		)),

		logger.Module,
		config.Module,

		storageAdapter.Module,
		local.Module,
		gcs.Module,
		gormadapter.Module,
		fx.Options(dbProviderOptions...),
		migration.Module,

		inmemory.Module,
		metrics.Module,
		logging.Module,
		rejects.Module,
		jobRunner.Module,

		mapper.Module,
		processor.Module,
		writer.Module,
		job.Module,
	)
}

// RunApplication starts the fx application, runs the customer job once and returns the
// process exit code: 0 when the job completed, 1 when it failed, 2 when it was stopped.
// Cancelling appCtx stops the job after the chunk in flight.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, migrationFS fs.FS, dbProviderOptions []fx.Option) int {
	app := fx.New(
		Options(envFilePath, embeddedConfig, migrationFS, dbProviderOptions),
		fx.Supply(fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`))),
		fx.Invoke(startJobExecution),
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Application could not be built: %v", err)
		return model.ExitCodeFailed
	}

	startCtx, cancelStart := context.WithTimeout(context.WithoutCancel(appCtx), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application failed to start: %v", err)
		return model.ExitCodeFailed
	}
	sig := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(appCtx), stopTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Warnf("Application did not stop cleanly: %v", err)
	}
	return sig.ExitCode
}

type launchParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	AppCtx     context.Context `name:"appCtx"`
	Cfg        *config.Config
	Migrations *migration.Runner
	Runner     *jobRunner.SimpleJobRunner
	Job        port.Job
	DBResolver database.DBConnectionResolver
}

// startJobExecution runs the job in the background once the application has started and
// shuts the application down with the job's exit code when it is done.
func startJobExecution(p launchParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := model.ExitCodeFailed
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
						code = model.ExitCodeFailed
					}
					logger.Infof("Requesting application shutdown (exit code %d).", code)
					if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Shutdown request failed: %v", err)
					}
				}()
				code = launch(p)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Infof("Application stopping.")
			return nil
		},
	})
}

// launch migrates the target database, runs the job and reports the outcome. The migration
// is not interrupted by cancellation; the job is.
func launch(p launchParams) int {
	target := p.Cfg.Batch.TargetDBRef
	if err := p.Migrations.Run(context.WithoutCancel(p.AppCtx), target); err != nil {
		logger.Errorf("Schema migration of '%s' failed: %v", target, err)
		return model.ExitCodeFailed
	}

	je := p.Runner.Run(p.AppCtx, p.Job)
	for _, s := range je.StepExecutions {
		logger.Infof("Step result: %s", s)
	}
	if err := je.State.Err(); err != nil {
		logger.Errorf("Job '%s' ended %s: %v", je.JobName, je.Phase(), err)
	}
	logCustomerCount(context.WithoutCancel(p.AppCtx), p.DBResolver, target)
	return je.Phase().ExitCode()
}

func logCustomerCount(ctx context.Context, resolver database.DBConnectionResolver, dbName string) {
	conn, err := resolver.ResolveDBConnection(ctx, dbName)
	if err != nil {
		logger.Warnf("Could not resolve database '%s' to count customers: %v", dbName, err)
		return
	}
	n, err := conn.Count(ctx, &entity.Customer{}, nil)
	if err != nil {
		logger.Warnf("Could not count customers in '%s': %v", dbName, err)
		return
	}
	logger.Infof("Table '%s' in '%s' now holds %d row(s).", entity.Customer{}.TableName(), dbName, n)
}

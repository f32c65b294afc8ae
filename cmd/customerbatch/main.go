// Command customerbatch imports customers from a CSV file into a database in chunks.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/internal/app"
	"github.com/tigerroll/customer-batch/internal/resources"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// dbProviderOptions selects the database providers named by DB_PROVIDERS, a comma-separated
// list such as "sqlite,postgres". All providers are registered when it is unset.
func dbProviderOptions() []fx.Option {
	names := os.Getenv("DB_PROVIDERS")
	if names == "" {
		names = "sqlite,postgres,mysql"
	}

	var options []fx.Option
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if module, ok := app.DBProviderModules[name]; ok {
			options = append(options, module)
			logger.Debugf("DB provider '%s' registered.", name)
		} else {
			logger.Warnf("DB provider '%s' is not supported. Skipping.", name)
		}
	}
	return options
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the job after the current chunk...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := app.RunApplication(ctx, envFilePath, resources.ApplicationConfig(), resources.Migrations(), dbProviderOptions())
	cancel()
	os.Exit(code)
}

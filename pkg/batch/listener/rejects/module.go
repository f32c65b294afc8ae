package rejects

import (
	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

type listenerResults struct {
	fx.Out
	Skip  []port.SkipListener          `group:"skip_listeners,flatten"`
	Step  []port.StepExecutionListener `group:"step_listeners,flatten"`
	Chunk []port.ChunkListener         `group:"chunk_listeners,flatten"`
}

// newListeners registers the exporter as a skip, chunk and step listener when
// batch.rejects.enabled is set.
func newListeners(cfg *config.Config, resolver storage.StorageConnectionResolver) (listenerResults, error) {
	if !cfg.Batch.Rejects.Enabled {
		return listenerResults{}, nil
	}
	e, err := NewExporter(cfg.Batch.Rejects, resolver)
	if err != nil {
		return listenerResults{}, err
	}
	return listenerResults{
		Skip:  []port.SkipListener{e},
		Step:  []port.StepExecutionListener{e},
		Chunk: []port.ChunkListener{e},
	}, nil
}

// Module contributes the rejects exporter to the listener groups.
var Module = fx.Module("rejects_listener",
	fx.Provide(newListeners),
)

package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter sends fx container events to the leveled logger. Successful wiring is DEBUG
// noise; failures are always reported at ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter is passed to fx.WithLogger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("OnStart hook executing: %s", hookName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		hookDone("OnStart", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		Debugf("OnStop hook executing: %s", hookName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		hookDone("OnStop", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Provide failed (%s): %v", e.ConstructorName, e.Err)
			return
		}
		Debugf("Provided %s by %s", strings.Join(e.OutputTypeNames, ", "), e.ConstructorName)
	case *fxevent.Supplied:
		failed("Supply "+e.TypeName, e.Err)
	case *fxevent.Invoking:
		Debugf("Invoking: %s", hookName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoke failed: %s: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Started:
		if e.Err == nil {
			Debugf("Container started.")
		}
		failed("Start", e.Err)
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		failed("Rollback", e.Err)
	case *fxevent.Stopping:
		Infof("Received %s, stopping.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		failed("Stop", e.Err)
	case *fxevent.LoggerInitialized:
		failed("fx logger initialisation", e.Err)
	}
}

func hookDone(kind, fn, took string, err error) {
	if err != nil {
		Errorf("%s hook failed: %s: %v", kind, hookName(fn), err)
		return
	}
	Debugf("%s hook executed: %s (%s)", kind, hookName(fn), took)
}

func failed(what string, err error) {
	if err != nil {
		Errorf("%s failed: %v", what, err)
	}
}

// hookName strips the closure suffix: "pkg.fn.func1" becomes "pkg.fn".
func hookName(fn string) string {
	if i := strings.LastIndex(fn, ".func"); i >= 0 {
		return fn[:i]
	}
	return fn
}

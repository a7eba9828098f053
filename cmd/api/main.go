package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			loadConfig,
			newLogger,
			newMetrics,
			newPool,
			newIDs,
			newClock,
			newStorage,
			newRegistry,
			newDedupe,
			newDispatcher,
			newServices,
			newHTTPServer,
		),
		fx.Invoke(
			startTracing,
			runReaper,
			runSweeper,
			runEventPipeline,
			runHTTPServer,
		),
	)
	app.Run()
}

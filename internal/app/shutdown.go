package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.probe.SetReady(false)

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop intake first so no new events or requests arrive, then drain.
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.hub.Close()
	a.pump.Close()

	err = a.store.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.viewCache.Close()

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}

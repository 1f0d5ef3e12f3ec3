package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mvergaray/facturador-api/pkg/logger"
)

// Worker es el loop de polling: cada tick ejecuta un lote del scheduler.
// El apagado es cooperativo (cancelación de contexto): el lote en curso
// termina y los locks que quedaran huérfanos por una caída abrupta los
// recupera la regla de stale-lock.
type Worker struct {
	scheduler *Scheduler
	interval  time.Duration
	log       *logger.Logger
}

// NewWorker construye el loop con el intervalo de poll configurado.
func NewWorker(scheduler *Scheduler, interval time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		scheduler: scheduler,
		interval:  interval,
		log:       log.WithComponent("worker"),
	}
}

// Run bloquea hasta que ctx se cancele. Corre un lote inmediatamente al
// arrancar y luego uno por tick.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("worker iniciado")

	w.scheduler.ProcessBatch(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker detenido")
			return
		case <-ticker.C:
			if n := w.scheduler.ProcessBatch(ctx); n > 0 {
				w.log.Debug().Int("jobs", n).Msg("lote procesado")
			}
		}
	}
}

// NewWorkerID genera la identidad del proceso para locked_by:
// hostname más un fragmento aleatorio (varios workers pueden compartir host).
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

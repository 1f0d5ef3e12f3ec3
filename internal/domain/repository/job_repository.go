package repository

import (
	"context"
	"time"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
)

// JobRepository persistencia de jobs de envío SUNAT.
type JobRepository interface {
	Create(ctx context.Context, job *entity.SunatJob) error

	// LoadEligible devuelve hasta limit jobs elegibles, los más antiguos primero.
	// Un job es elegible si está QUEUED con next_run_at <= now y sin lock, o si
	// su lock es más viejo que staleAfter (worker presumiblemente caído).
	LoadEligible(ctx context.Context, limit int, staleAfter time.Duration) ([]*entity.SunatJob, error)

	// TryLock intenta adquirir el lock del job con un compare-and-set atómico:
	// el job debe seguir elegible (next_run_at vencido) y su lock nulo o
	// vencido. Devuelve la fila recién lockeada para que el worker ejecute
	// sobre el estado fresco y no sobre la copia cargada antes de la carrera.
	// nil sin error significa que otro worker ganó la carrera (o que el job ya
	// fue reencolado al futuro); el job simplemente se salta este ciclo.
	TryLock(ctx context.Context, jobID, workerID string, staleAfter time.Duration) (*entity.SunatJob, error)

	// Save persiste el resultado de un intento (status, attempts, next_run_at,
	// last_error, ticket) y libera el lock.
	Save(ctx context.Context, job *entity.SunatJob) error

	GetByID(ctx context.Context, id string) (*entity.SunatJob, error)

	// GetUnfinishedByDocument devuelve el job no terminado del documento, o nil.
	// Soporta la regla de a-lo-sumo-un-job-en-vuelo por documento.
	GetUnfinishedByDocument(ctx context.Context, documentID string) (*entity.SunatJob, error)

	// ResetFailed devuelve todos los jobs FAILED a QUEUED con attempts en cero
	// y next_run_at inmediato. Devuelve cuántos jobs fueron reencolados.
	ResetFailed(ctx context.Context) (int, error)
}

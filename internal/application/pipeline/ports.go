// Package pipeline orquesta el ciclo de vida del envío electrónico:
// encolado, firma, transmisión al WS SUNAT, seguimiento de tickets y
// reintentos con backoff. Toda mutación de documento pasa por el state
// machine del dominio; este paquete solo decide cuándo y persiste.
package pipeline

import (
	"context"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
)

// TxRunner ejecuta callbacks con repositorios atados a una misma transacción.
// El documento y su job se actualizan siempre juntos: o se persiste el
// resultado completo del intento, o nada.
type TxRunner interface {
	// RunPipeline transacción del worker: documento + job.
	RunPipeline(ctx context.Context, fn func(
		docRepo repository.DocumentRepository,
		jobRepo repository.JobRepository,
	) error) error

	// RunDraft transacción del alta de borradores: documento + correlativo.
	RunDraft(ctx context.Context, fn func(
		docRepo repository.DocumentRepository,
		seqRepo repository.SequenceRepository,
	) error) error
}

// Processor ejecuta el trabajo de un intento: firma el documento si hace
// falta, envía el comprobante o consulta el ticket según la acción del job, y
// aplica las transiciones del state machine sobre la copia en memoria del
// documento. Devuelve el outcome final observado; nil significa que el
// intento terminó sin hablar con el WS (entorno dev: solo firma).
//
// Un error de retorno deja el job en manos del scheduler: *sunat.TransientError
// se reintenta con backoff, cualquier otro error es permanente (job FAILED).
type Processor interface {
	Process(ctx context.Context, doc *entity.Document, job *entity.SunatJob) (*domsunat.Outcome, error)
}

package entity

import "time"

// Estados del job de envío.
const (
	JobStatusQueued  = "QUEUED"  // Elegible cuando next_run_at <= now y sin lock vigente
	JobStatusPending = "PENDING" // Tomado por un worker (lock vigente)
	JobStatusDone    = "DONE"    // Terminó; el resultado quedó en el documento
	JobStatusFailed  = "FAILED"  // Agotó reintentos o falla permanente; reseteable por operador
)

// Acciones que puede ejecutar el worker sobre un documento.
const (
	JobActionSend        = "send"         // Firmar (si falta) y enviar el comprobante
	JobActionCheckTicket = "check-ticket" // Consultar el ticket de un envío diferido
)

// SunatJob es la unidad de trabajo durable del pipeline. Un documento tiene a lo
// sumo un job sin terminar a la vez; esa regla la impone quien crea los jobs
// (EnqueueSubmission), no el scheduler.
type SunatJob struct {
	ID         string
	DocumentID string
	Action     string
	Status     string
	Ticket     string // Ticket a consultar cuando Action == check-ticket

	NextRunAt time.Time  // Momento más temprano en que el job es elegible
	LockedAt  *time.Time // No nulo mientras un worker es dueño del job
	LockedBy  string     // Identidad del worker que tomó el lock (diagnóstico)
	Attempts  int
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockExpired indica si el lock del job es más viejo que staleAfter y debe
// considerarse huérfano (worker caído). Única excepción a la exclusión mutua.
func (j *SunatJob) LockExpired(now time.Time, staleAfter time.Duration) bool {
	return j.LockedAt != nil && now.Sub(*j.LockedAt) > staleAfter
}

// IsFinished indica si el job ya no volverá a ejecutarse.
func (j *SunatJob) IsFinished() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	"github.com/mvergaray/facturador-api/pkg/config"
	"github.com/mvergaray/facturador-api/pkg/logger"
)

// Scheduler ejecuta lotes de jobs elegibles: adquiere el lock de cada uno con
// un compare-and-set, corre exactamente un intento y persiste documento + job
// en una sola transacción. La política de reintentos vive acá; el trabajo en
// sí (firmar, enviar, consultar ticket) vive en el Processor.
type Scheduler struct {
	docRepo   repository.DocumentRepository
	jobRepo   repository.JobRepository
	tx        TxRunner
	processor Processor
	log       *logger.Logger
	cfg       config.WorkerConfig
	workerID  string

	now     func() time.Time // inyectable en tests
	jitterF func() float64   // uniforme [0,1); inyectable en tests
}

// NewScheduler construye el scheduler. workerID identifica este proceso en
// locked_by para diagnóstico de locks huérfanos.
func NewScheduler(
	docRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
	tx TxRunner,
	processor Processor,
	log *logger.Logger,
	cfg config.WorkerConfig,
	workerID string,
) *Scheduler {
	return &Scheduler{
		docRepo:   docRepo,
		jobRepo:   jobRepo,
		tx:        tx,
		processor: processor,
		log:       log.WithComponent("scheduler"),
		cfg:       cfg,
		workerID:  workerID,
		now:       time.Now,
		jitterF:   rand.Float64,
	}
}

// ProcessBatch carga y ejecuta un lote de jobs elegibles, los más antiguos
// primero. Devuelve cuántos jobs ejecutó. Perder la carrera del lock con otro
// worker no es un error: el job simplemente se salta este ciclo.
func (s *Scheduler) ProcessBatch(ctx context.Context) int {
	jobs, err := s.jobRepo.LoadEligible(ctx, s.cfg.BatchSize, s.cfg.LockTimeout)
	if err != nil {
		s.log.Error().Err(err).Msg("no se pudo cargar jobs elegibles")
		return 0
	}

	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		// Se ejecuta sobre la fila devuelta por TryLock, no sobre la copia de
		// LoadEligible: otro worker pudo reencolarla en medio.
		locked, err := s.jobRepo.TryLock(ctx, job.ID, s.workerID, s.cfg.LockTimeout)
		if err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("error adquiriendo lock")
			continue
		}
		if locked == nil {
			s.log.Debug().Str("job_id", job.ID).Msg("lock perdido contra otro worker; se salta")
			continue
		}
		s.runJob(ctx, locked)
		processed++
	}
	return processed
}

// runJob ejecuta un intento del job ya lockeado y persiste el resultado.
func (s *Scheduler) runJob(ctx context.Context, job *entity.SunatJob) {
	job.Attempts++
	log := s.log.With().
		Str("job_id", job.ID).
		Str("doc_id", job.DocumentID).
		Str("action", job.Action).
		Int("attempts", job.Attempts).
		Logger()

	doc, err := s.docRepo.GetByID(ctx, job.DocumentID)
	if err != nil {
		s.reschedule(ctx, job, domsunat.NewTransient("fetch-document", err))
		return
	}
	if doc == nil {
		s.fail(ctx, job, "documento no existe")
		return
	}

	outcome, err := s.processor.Process(ctx, doc, job)
	if err != nil {
		var transient *domsunat.TransientError
		if errors.As(err, &transient) {
			// El documento pudo haber avanzado (ej. quedó firmado antes de la
			// falla de red): persistir ese progreso junto con el reencolado.
			s.persistDoc(ctx, doc)
			s.reschedule(ctx, job, transient)
			return
		}
		s.persistDoc(ctx, doc)
		log.Warn().Err(err).Msg("falla permanente; job FAILED")
		s.fail(ctx, job, err.Error())
		return
	}

	// Intento exitoso: documento + job en una sola transacción.
	err = s.tx.RunPipeline(ctx, func(docRepo repository.DocumentRepository, jobRepo repository.JobRepository) error {
		if err := docRepo.Update(ctx, doc); err != nil {
			return err
		}
		return s.settle(ctx, jobRepo, job, outcome)
	})
	if err != nil {
		// El intento corrió pero no se pudo persistir: reintento transitorio.
		s.reschedule(ctx, job, domsunat.NewTransient("persist-attempt", err))
		return
	}
	log.Info().
		Str("doc_status", doc.Status).
		Str("job_status", job.Status).
		Msg("intento completado")
}

// settle decide el destino del job según el outcome observado y crea el job
// de seguimiento cuando SUNAT respondió con ticket.
func (s *Scheduler) settle(ctx context.Context, jobRepo repository.JobRepository, job *entity.SunatJob, outcome *domsunat.Outcome) error {
	job.LastError = ""

	// nil = entorno dev: se firmó sin enviar.
	if outcome == nil || outcome.Kind != domsunat.OutcomePending {
		job.Status = entity.JobStatusDone
		return jobRepo.Save(ctx, job)
	}

	if job.Action == entity.JobActionCheckTicket {
		// Ticket todavía en proceso (98): el mismo job vuelve a la cola.
		// No cuenta como falla, así que el contador de intentos retrocede.
		job.Attempts--
		job.Status = entity.JobStatusQueued
		job.NextRunAt = s.now().Add(s.cfg.TicketDelay)
		return jobRepo.Save(ctx, job)
	}

	// Envío diferido aceptado con ticket: este job termina y nace el job de
	// consulta, en la misma transacción.
	job.Status = entity.JobStatusDone
	job.Ticket = outcome.Ticket
	if err := jobRepo.Save(ctx, job); err != nil {
		return err
	}
	followUp := &entity.SunatJob{
		DocumentID: job.DocumentID,
		Action:     entity.JobActionCheckTicket,
		Status:     entity.JobStatusQueued,
		Ticket:     outcome.Ticket,
		NextRunAt:  s.now().Add(s.cfg.TicketDelay),
	}
	return jobRepo.Create(ctx, followUp)
}

// reschedule reencola el job tras una falla transitoria, o lo marca FAILED si
// agotó los reintentos.
func (s *Scheduler) reschedule(ctx context.Context, job *entity.SunatJob, cause error) {
	if job.Attempts >= s.cfg.MaxAttempts {
		s.log.Warn().
			Str("job_id", job.ID).
			Int("attempts", job.Attempts).
			Err(cause).
			Msg("reintentos agotados; job FAILED")
		s.fail(ctx, job, cause.Error())
		return
	}
	delay := s.Backoff(job.Attempts)
	job.Status = entity.JobStatusQueued
	job.NextRunAt = s.now().Add(delay)
	job.LastError = cause.Error()
	if err := s.jobRepo.Save(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("no se pudo reencolar el job")
		return
	}
	s.log.Info().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Dur("delay", delay).
		Err(cause).
		Msg("falla transitoria; reencolado con backoff")
}

func (s *Scheduler) fail(ctx context.Context, job *entity.SunatJob, lastError string) {
	job.Status = entity.JobStatusFailed
	job.LastError = lastError
	if err := s.jobRepo.Save(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("no se pudo marcar el job FAILED")
	}
}

// persistDoc guarda el progreso del documento fuera de la transacción del
// job. Best effort: si falla, el reintento re-firmará (la firma es
// determinista, el resultado es el mismo).
func (s *Scheduler) persistDoc(ctx context.Context, doc *entity.Document) {
	if err := s.docRepo.Update(ctx, doc); err != nil {
		s.log.Warn().Err(err).Str("doc_id", doc.ID).Msg("no se pudo persistir el progreso del documento")
	}
}

// Backoff devuelve la espera antes del reintento attempt (1-based):
// exponencial con base y tope configurables, más jitter uniforme de ±20%
// para desincronizar workers. El valor con jitter nunca supera el tope.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap || d <= 0 {
			d = s.cfg.BackoffCap
			break
		}
	}
	jittered := time.Duration(float64(d) * (0.8 + 0.4*s.jitterF()))
	if jittered > s.cfg.BackoffCap {
		jittered = s.cfg.BackoffCap
	}
	return jittered
}

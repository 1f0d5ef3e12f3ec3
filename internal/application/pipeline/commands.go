package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	"github.com/mvergaray/facturador-api/pkg/logger"
)

// Commands es la superficie de comandos del pipeline, consumida por los
// handlers HTTP. El worker no pasa por acá.
type Commands struct {
	docRepo repository.DocumentRepository
	jobRepo repository.JobRepository
	tx      TxRunner
	log     *logger.Logger
}

// NewCommands construye la superficie de comandos.
func NewCommands(
	docRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
	tx TxRunner,
	log *logger.Logger,
) *Commands {
	return &Commands{
		docRepo: docRepo,
		jobRepo: jobRepo,
		tx:      tx,
		log:     log.WithComponent("commands"),
	}
}

// CreateDraft valida el borrador, le asigna el siguiente correlativo de su
// serie y lo persiste con sus líneas en una sola transacción. El documento
// queda en DRAFT listo para encolarse.
func (c *Commands) CreateDraft(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	doc.Status = entity.DocStatusDraft
	if doc.IssueDate.IsZero() {
		doc.IssueDate = time.Now()
	}

	err := c.tx.RunDraft(ctx, func(docRepo repository.DocumentRepository, seqRepo repository.SequenceRepository) error {
		number, err := seqRepo.Next(ctx, doc.CompanyID, doc.DocType, doc.Series)
		if err != nil {
			return err
		}
		doc.Number = number

		// La validación corre con el correlativo ya asignado: el formato del
		// número también es parte del borrador válido.
		if err := domsunat.ValidateDraft(doc, doc.Lines); err != nil {
			return err
		}

		if err := docRepo.Create(ctx, doc); err != nil {
			return err
		}
		for _, line := range doc.Lines {
			line.DocumentID = doc.ID
			if err := docRepo.CreateLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("doc_id", doc.ID).
		Str("full_number", doc.FullNumber()).
		Msg("borrador creado")
	return doc, nil
}

// EnqueueSubmission crea el job de envío del documento, o de consulta de
// ticket si el documento ya fue transmitido. Idempotente en el sentido de
// a-lo-sumo-uno-en-vuelo: si el documento ya tiene un job sin terminar
// devuelve ErrJobInFlight y no crea nada.
func (c *Commands) EnqueueSubmission(ctx context.Context, documentID string) (*entity.SunatJob, error) {
	doc, err := c.docRepo.GetStatus(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, documentID)
	}
	if doc.IsTerminal() {
		return nil, fmt.Errorf("%w: el documento %s ya está en %s", domain.ErrConflict, documentID, doc.Status)
	}

	existing, err := c.jobRepo.GetUnfinishedByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: job %s en estado %s", domain.ErrJobInFlight, existing.ID, existing.Status)
	}

	// Un documento SENT ya está en manos de SUNAT: reenviarlo duplicaría el
	// comprobante. Lo que se reanuda es la consulta del ticket pendiente.
	action := entity.JobActionSend
	ticket := ""
	if doc.Status == entity.DocStatusSent {
		if doc.SunatTicket == "" {
			return nil, fmt.Errorf("%w: el documento %s está SENT sin ticket que consultar", domain.ErrConflict, documentID)
		}
		action = entity.JobActionCheckTicket
		ticket = doc.SunatTicket
	}

	job := &entity.SunatJob{
		DocumentID: documentID,
		Action:     action,
		Status:     entity.JobStatusQueued,
		Ticket:     ticket,
		NextRunAt:  time.Now(),
	}
	// La carrera entre el check anterior y este insert la cierra el índice
	// único parcial: el perdedor recibe ErrJobInFlight del repositorio.
	if err := c.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	c.log.Info().Str("doc_id", documentID).Str("job_id", job.ID).Msg("envío encolado")
	return job, nil
}

// DocumentStatus estado del documento más su job activo (si lo hay), para el
// endpoint de consulta.
type DocumentStatus struct {
	Document *entity.Document
	Job      *entity.SunatJob
}

// GetDocumentStatus consulta ligera de estado: documento sin XML ni líneas,
// más el job sin terminar si existe.
func (c *Commands) GetDocumentStatus(ctx context.Context, documentID string) (*DocumentStatus, error) {
	doc, err := c.docRepo.GetStatus(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, documentID)
	}
	job, err := c.jobRepo.GetUnfinishedByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentStatus{Document: doc, Job: job}, nil
}

// AdminResetFailedJobs reencola todos los jobs FAILED con el contador en
// cero. Devuelve cuántos reencoló.
func (c *Commands) AdminResetFailedJobs(ctx context.Context) (int, error) {
	n, err := c.jobRepo.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	c.log.Info().Int("jobs", n).Msg("jobs FAILED reencolados")
	return n, nil
}

// AdminResetDocument devuelve el documento a DRAFT limpiando todos los campos
// derivados. Se rechaza mientras haya un job en vuelo: primero debe terminar
// (o resetearse) el job.
func (c *Commands) AdminResetDocument(ctx context.Context, documentID string) error {
	doc, err := c.docRepo.GetStatus(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: documento %s", domain.ErrNotFound, documentID)
	}

	job, err := c.jobRepo.GetUnfinishedByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if job != nil {
		return fmt.Errorf("%w: job %s en estado %s", domain.ErrJobInFlight, job.ID, job.Status)
	}

	if err := c.docRepo.Reset(ctx, documentID); err != nil {
		return err
	}
	c.log.Info().Str("doc_id", documentID).Msg("documento reseteado a DRAFT")
	return nil
}

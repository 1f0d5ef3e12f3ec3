package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo implementación de JobRepository (usable con pool o tx).
type JobRepo struct {
	q Querier
}

// NewJobRepository construye el adaptador. Pasar pool o tx (Querier).
func NewJobRepository(q Querier) *JobRepo {
	return &JobRepo{q: q}
}

// Create persiste un job nuevo en QUEUED.
func (r *JobRepo) Create(ctx context.Context, job *entity.SunatJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	query := `
		INSERT INTO sunat_jobs (id, document_id, action, status, ticket,
		                        next_run_at, locked_at, locked_by, attempts, last_error,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		job.ID, job.DocumentID, job.Action, job.Status, nullIfEmpty(job.Ticket),
		job.NextRunAt, job.LockedAt, nullIfEmpty(job.LockedBy), job.Attempts, nullIfEmpty(job.LastError),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		// Índice único parcial sobre document_id para jobs sin terminar:
		// dos enqueues concurrentes no pueden crear dos jobs en vuelo.
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: documento %s", domain.ErrJobInFlight, job.DocumentID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// LoadEligible devuelve hasta limit jobs listos para ejecutar, los más antiguos
// primero (por next_run_at). Incluye jobs con lock vencido: locks más viejos
// que staleAfter se consideran de workers caídos.
func (r *JobRepo) LoadEligible(ctx context.Context, limit int, staleAfter time.Duration) ([]*entity.SunatJob, error) {
	query := `
		SELECT id, document_id, action, status, ticket,
		       next_run_at, locked_at, locked_by, attempts, last_error,
		       created_at, updated_at
		FROM sunat_jobs
		WHERE next_run_at <= now()
		  AND (
		        (status = 'QUEUED' AND locked_at IS NULL)
		     OR (status IN ('QUEUED', 'PENDING') AND locked_at < now() - $2::interval)
		  )
		ORDER BY next_run_at ASC, created_at ASC
		LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit, staleAfter.String())
	if err != nil {
		return nil, fmt.Errorf("load eligible jobs: %w", err)
	}
	defer rows.Close()

	var list []*entity.SunatJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// TryLock adquiere el lock del job con un compare-and-set: el UPDATE solo
// procede si el job sigue elegible (next_run_at vencido) y nadie lo tiene o
// su lock está vencido. Devuelve la fila recién lockeada vía RETURNING; entre
// LoadEligible y este punto otro worker pudo completar un intento y reencolar
// el job, y ejecutar sobre esa copia vieja pisaría su contador de intentos.
// nil sin error: otro worker ganó la carrera o el job ya no es elegible.
func (r *JobRepo) TryLock(ctx context.Context, jobID, workerID string, staleAfter time.Duration) (*entity.SunatJob, error) {
	query := `
		UPDATE sunat_jobs
		SET status = 'PENDING', locked_at = now(), locked_by = $2, updated_at = now()
		WHERE id = $1
		  AND next_run_at <= now()
		  AND status IN ('QUEUED', 'PENDING')
		  AND (locked_at IS NULL OR locked_at < now() - $3::interval)
		RETURNING id, document_id, action, status, ticket,
		          next_run_at, locked_at, locked_by, attempts, last_error,
		          created_at, updated_at`
	job, err := scanJob(r.q.QueryRow(ctx, query, jobID, workerID, staleAfter.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock job: %w", err)
	}
	return job, nil
}

// Save persiste el resultado de un intento y libera el lock.
func (r *JobRepo) Save(ctx context.Context, job *entity.SunatJob) error {
	job.UpdatedAt = time.Now()
	query := `
		UPDATE sunat_jobs
		SET status = $2, ticket = $3, next_run_at = $4,
		    locked_at = NULL, locked_by = NULL,
		    attempts = $5, last_error = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		job.ID, job.Status, nullIfEmpty(job.Ticket), job.NextRunAt,
		job.Attempts, nullIfEmpty(job.LastError), job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save job %s: no existe", job.ID)
	}
	job.LockedAt = nil
	job.LockedBy = ""
	return nil
}

// GetByID devuelve el job, o nil si no existe.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*entity.SunatJob, error) {
	query := `
		SELECT id, document_id, action, status, ticket,
		       next_run_at, locked_at, locked_by, attempts, last_error,
		       created_at, updated_at
		FROM sunat_jobs WHERE id = $1`
	job, err := scanJob(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// GetUnfinishedByDocument devuelve el job no terminado del documento, o nil.
func (r *JobRepo) GetUnfinishedByDocument(ctx context.Context, documentID string) (*entity.SunatJob, error) {
	query := `
		SELECT id, document_id, action, status, ticket,
		       next_run_at, locked_at, locked_by, attempts, last_error,
		       created_at, updated_at
		FROM sunat_jobs
		WHERE document_id = $1 AND status NOT IN ('DONE', 'FAILED')
		LIMIT 1`
	job, err := scanJob(r.q.QueryRow(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// ResetFailed reencola todos los jobs FAILED con contador en cero.
func (r *JobRepo) ResetFailed(ctx context.Context) (int, error) {
	query := `
		UPDATE sunat_jobs
		SET status = 'QUEUED', attempts = 0, next_run_at = now(),
		    locked_at = NULL, locked_by = NULL, last_error = NULL, updated_at = now()
		WHERE status = 'FAILED'`
	tag, err := r.q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset failed jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*entity.SunatJob, error) {
	var job entity.SunatJob
	var ticket, lockedBy, lastError *string
	err := row.Scan(
		&job.ID, &job.DocumentID, &job.Action, &job.Status, &ticket,
		&job.NextRunAt, &job.LockedAt, &lockedBy, &job.Attempts, &lastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Ticket = derefStr(ticket)
	job.LockedBy = derefStr(lockedBy)
	job.LastError = derefStr(lastError)
	return &job, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvergaray/facturador-api/internal/application/pipeline"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
)

var _ pipeline.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunPipeline inicia una transacción, ejecuta fn con los repos de documento y
// job atados a la tx, y hace Commit o Rollback.
func (r *TxRunner) RunPipeline(ctx context.Context, fn func(
	docRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewDocumentRepository(tx), NewJobRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunDraft inicia una transacción con los repos de documento y correlativos
// (alta de borradores: asignar número y persistir es un solo paso atómico).
func (r *TxRunner) RunDraft(ctx context.Context, fn func(
	docRepo repository.DocumentRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewDocumentRepository(tx), NewSequenceRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/mvergaray/facturador-api/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo asigna correlativos con un UPSERT atómico: la fila
// (company_id, doc_type, series) guarda el último número emitido y el
// incremento ocurre dentro de la misma sentencia, así dos llamadas
// concurrentes nunca reciben el mismo correlativo.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next devuelve el siguiente correlativo de la serie, en formato de 8 dígitos.
func (r *SequenceRepo) Next(ctx context.Context, companyID, docType, series string) (string, error) {
	query := `
		INSERT INTO document_sequences (company_id, doc_type, series, last_number)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, doc_type, series)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number`
	var n int64
	if err := r.q.QueryRow(ctx, query, companyID, docType, series).Scan(&n); err != nil {
		return "", fmt.Errorf("next sequence %s/%s/%s: %w", companyID, docType, series, err)
	}
	return fmt.Sprintf("%08d", n), nil
}

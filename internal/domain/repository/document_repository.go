package repository

import (
	"context"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
)

// DocumentRepository persistencia de comprobantes electrónicos.
// Las implementaciones deben ser utilizables con pool o con transacción (Querier).
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	CreateLine(ctx context.Context, line *entity.DocumentLine) error
	// Update escribe los campos derivados del pipeline (status, xml, hash, respuesta SUNAT).
	// Los campos de identidad (serie, correlativo, doc_type) nunca se modifican.
	Update(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetLinesByDocumentID(ctx context.Context, documentID string) ([]*entity.DocumentLine, error)
	// GetStatus consulta ligera de estado para la UI/polling.
	GetStatus(ctx context.Context, id string) (*entity.Document, error)
	// Reset devuelve el documento a DRAFT limpiando todos los campos derivados
	// (xml_signed, hash, zip_sent, sunat_*, cdr). Operación administrativa.
	Reset(ctx context.Context, id string) error
}

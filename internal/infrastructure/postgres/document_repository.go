package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create persiste la cabecera del comprobante.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	query := `
		INSERT INTO documents (id, company_id, doc_type, series, number, issue_date, currency,
		                       customer_doc_type, customer_doc_num, customer_name,
		                       total_taxed, total_igv, total_payable,
		                       affected_doc_id, note_reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.CompanyID, doc.DocType, doc.Series, doc.Number, doc.IssueDate, doc.Currency,
		doc.CustomerDocType, doc.CustomerDocNum, doc.CustomerName,
		doc.TotalTaxed, doc.TotalIGV, doc.TotalPayable,
		nullIfEmpty(doc.AffectedDocID), nullIfEmpty(doc.NoteReason),
		doc.Status, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("serie-correlativo ya existe: %w", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// CreateLine persiste una línea de detalle.
func (r *DocumentRepo) CreateLine(ctx context.Context, line *entity.DocumentLine) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	query := `
		INSERT INTO document_lines (id, document_id, product_code, description, unit_code,
		                            quantity, unit_value, unit_price, igv_affect, igv, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		line.ID, line.DocumentID, line.ProductCode, line.Description, line.UnitCode,
		line.Quantity, line.UnitValue, line.UnitPrice, line.IGVAffect, line.IGV, line.LineTotal,
	)
	if err != nil {
		return fmt.Errorf("insert document line: %w", err)
	}
	return nil
}

// Update escribe los campos derivados del pipeline. La identidad del
// comprobante (serie, correlativo, tipo, totales) no se toca nunca.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document) error {
	doc.UpdatedAt = time.Now()
	query := `
		UPDATE documents
		SET status        = $2,
		    xml_signed    = $3,
		    hash          = $4,
		    zip_sent      = $5,
		    sunat_code    = $6,
		    sunat_message = $7,
		    sunat_ticket  = $8,
		    cdr_zip       = $9,
		    updated_at    = $10
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		doc.ID,
		doc.Status,
		nullIfEmpty(doc.XMLSigned),
		nullIfEmpty(doc.Hash),
		nullIfEmpty(doc.ZipSentBase64),
		nullIfEmpty(doc.SunatCode),
		nullIfEmpty(doc.SunatMessage),
		nullIfEmpty(doc.SunatTicket),
		nullIfEmpty(doc.CDRZip),
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document %s: no existe", doc.ID)
	}
	return nil
}

// GetByID obtiene un comprobante completo, con sus líneas.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `
		SELECT id, company_id, doc_type, series, number, issue_date, currency,
		       customer_doc_type, customer_doc_num, customer_name,
		       total_taxed, total_igv, total_payable,
		       affected_doc_id, note_reason, status,
		       xml_signed, hash, zip_sent, sunat_code, sunat_message, sunat_ticket, cdr_zip,
		       created_at, updated_at
		FROM documents WHERE id = $1`
	doc, err := r.scanDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	lines, err := r.GetLinesByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

// GetStatus consulta ligera para polling: no carga XML, ZIP ni líneas.
func (r *DocumentRepo) GetStatus(ctx context.Context, id string) (*entity.Document, error) {
	query := `
		SELECT id, company_id, doc_type, series, number, status, hash,
		       sunat_code, sunat_message, sunat_ticket
		FROM documents WHERE id = $1`
	var doc entity.Document
	var hash, code, msg, ticket *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.CompanyID, &doc.DocType, &doc.Series, &doc.Number, &doc.Status, &hash,
		&code, &msg, &ticket,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document status: %w", err)
	}
	doc.Hash = derefStr(hash)
	doc.SunatCode = derefStr(code)
	doc.SunatMessage = derefStr(msg)
	doc.SunatTicket = derefStr(ticket)
	return &doc, nil
}

// GetLinesByDocumentID devuelve las líneas del comprobante en orden de inserción.
func (r *DocumentRepo) GetLinesByDocumentID(ctx context.Context, documentID string) ([]*entity.DocumentLine, error) {
	query := `
		SELECT id, document_id, product_code, description, unit_code,
		       quantity, unit_value, unit_price, igv_affect, igv, line_total
		FROM document_lines WHERE document_id = $1 ORDER BY ctid`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document lines: %w", err)
	}
	defer rows.Close()

	var list []*entity.DocumentLine
	for rows.Next() {
		var l entity.DocumentLine
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.ProductCode, &l.Description, &l.UnitCode,
			&l.Quantity, &l.UnitValue, &l.UnitPrice, &l.IGVAffect, &l.IGV, &l.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan document line: %w", err)
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

// Reset limpia todos los campos derivados y devuelve el comprobante a DRAFT.
func (r *DocumentRepo) Reset(ctx context.Context, id string) error {
	query := `
		UPDATE documents
		SET status = $2, xml_signed = NULL, hash = NULL, zip_sent = NULL,
		    sunat_code = NULL, sunat_message = NULL, sunat_ticket = NULL, cdr_zip = NULL,
		    updated_at = $3
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, id, entity.DocStatusDraft, time.Now())
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reset document %s: no existe", id)
	}
	return nil
}

func (r *DocumentRepo) scanDocument(row pgx.Row) (*entity.Document, error) {
	var doc entity.Document
	var affected, reason, xmlSigned, hash, zipSent, code, msg, ticket, cdr *string
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.DocType, &doc.Series, &doc.Number, &doc.IssueDate, &doc.Currency,
		&doc.CustomerDocType, &doc.CustomerDocNum, &doc.CustomerName,
		&doc.TotalTaxed, &doc.TotalIGV, &doc.TotalPayable,
		&affected, &reason, &doc.Status,
		&xmlSigned, &hash, &zipSent, &code, &msg, &ticket, &cdr,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	doc.AffectedDocID = derefStr(affected)
	doc.NoteReason = derefStr(reason)
	doc.XMLSigned = derefStr(xmlSigned)
	doc.Hash = derefStr(hash)
	doc.ZipSentBase64 = derefStr(zipSent)
	doc.SunatCode = derefStr(code)
	doc.SunatMessage = derefStr(msg)
	doc.SunatTicket = derefStr(ticket)
	doc.CDRZip = derefStr(cdr)
	return &doc, nil
}

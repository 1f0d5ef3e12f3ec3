package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
)

// CreateDocumentRequest body para POST /api/documents. La serie y el tipo los
// decide el cliente; el correlativo lo asigna el servidor.
type CreateDocumentRequest struct {
	DocType   string `json:"doc_type"` // Catálogo 01: 01, 03, 07, 08
	Series    string `json:"series"`
	IssueDate string `json:"issue_date,omitempty"` // YYYY-MM-DD; vacío = hoy
	Currency  string `json:"currency"`

	CustomerDocType string `json:"customer_doc_type"` // Catálogo 06: 6, 1, 0
	CustomerDocNum  string `json:"customer_doc_num"`
	CustomerName    string `json:"customer_name"`

	TotalTaxed   decimal.Decimal `json:"total_taxed"`
	TotalIGV     decimal.Decimal `json:"total_igv"`
	TotalPayable decimal.Decimal `json:"total_payable"`

	// Solo notas de crédito/débito
	AffectedDocID string `json:"affected_doc_id,omitempty"` // F001-00000042
	NoteReason    string `json:"note_reason,omitempty"`

	Lines []DocumentLineRequest `json:"lines"`
}

// DocumentLineRequest línea de detalle del comprobante.
type DocumentLineRequest struct {
	ProductCode string          `json:"product_code,omitempty"`
	Description string          `json:"description"`
	UnitCode    string          `json:"unit_code"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	IGVAffect   string          `json:"igv_affect"` // Catálogo 07
	IGV         decimal.Decimal `json:"igv"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// ToEntity convierte la petición en el borrador de dominio para la empresa del token.
func (r CreateDocumentRequest) ToEntity(companyID string) (*entity.Document, error) {
	var issueDate time.Time
	if r.IssueDate != "" {
		d, err := time.Parse("2006-01-02", r.IssueDate)
		if err != nil {
			return nil, err
		}
		issueDate = d
	}
	doc := &entity.Document{
		CompanyID:       companyID,
		DocType:         r.DocType,
		Series:          r.Series,
		IssueDate:       issueDate,
		Currency:        r.Currency,
		CustomerDocType: r.CustomerDocType,
		CustomerDocNum:  r.CustomerDocNum,
		CustomerName:    r.CustomerName,
		TotalTaxed:      r.TotalTaxed,
		TotalIGV:        r.TotalIGV,
		TotalPayable:    r.TotalPayable,
		AffectedDocID:   r.AffectedDocID,
		NoteReason:      r.NoteReason,
	}
	for _, l := range r.Lines {
		doc.Lines = append(doc.Lines, &entity.DocumentLine{
			ProductCode: l.ProductCode,
			Description: l.Description,
			UnitCode:    l.UnitCode,
			Quantity:    l.Quantity,
			UnitValue:   l.UnitValue,
			UnitPrice:   l.UnitPrice,
			IGVAffect:   l.IGVAffect,
			IGV:         l.IGV,
			LineTotal:   l.LineTotal,
		})
	}
	return doc, nil
}

// DocumentResponse comprobante creado, para POST /api/documents.
type DocumentResponse struct {
	ID           string          `json:"id"`
	FullNumber   string          `json:"full_number"` // F001-00000123
	DocType      string          `json:"doc_type"`
	Status       string          `json:"status"`
	IssueDate    string          `json:"issue_date"`
	Currency     string          `json:"currency"`
	CustomerName string          `json:"customer_name"`
	TotalPayable decimal.Decimal `json:"total_payable"`
}

// NewDocumentResponse mapea el documento persistido.
func NewDocumentResponse(doc *entity.Document) DocumentResponse {
	return DocumentResponse{
		ID:           doc.ID,
		FullNumber:   doc.FullNumber(),
		DocType:      doc.DocType,
		Status:       doc.Status,
		IssueDate:    doc.IssueDate.Format("2006-01-02"),
		Currency:     doc.Currency,
		CustomerName: doc.CustomerName,
		TotalPayable: doc.TotalPayable,
	}
}

// JobResponse estado del job de envío en respuestas.
type JobResponse struct {
	ID        string `json:"id"`
	Action    string `json:"action"` // send | check-ticket
	Status    string `json:"status"` // QUEUED | PENDING | DONE | FAILED
	Attempts  int    `json:"attempts"`
	NextRunAt string `json:"next_run_at"`
	LastError string `json:"last_error,omitempty"`
}

// NewJobResponse mapea el job.
func NewJobResponse(job *entity.SunatJob) JobResponse {
	return JobResponse{
		ID:        job.ID,
		Action:    job.Action,
		Status:    job.Status,
		Attempts:  job.Attempts,
		NextRunAt: job.NextRunAt.UTC().Format(time.RFC3339),
		LastError: job.LastError,
	}
}

// DocumentStatusResponse respuesta ligera para el endpoint de polling
// GET /api/documents/:id/status. El cliente consulta periódicamente hasta que
// status sea "ACCEPTED" o "ERROR".
type DocumentStatusResponse struct {
	ID           string       `json:"id"`
	FullNumber   string       `json:"full_number"`
	Status       string       `json:"status"` // DRAFT|SIGNED|SENT|ACCEPTED|ERROR
	Hash         string       `json:"hash,omitempty"`
	SunatCode    string       `json:"sunat_code,omitempty"`    // ResponseCode del CDR o código de fault
	SunatMessage string       `json:"sunat_message,omitempty"` // Descripción devuelta por SUNAT
	SunatTicket  string       `json:"sunat_ticket,omitempty"`  // Ticket de envío diferido
	Job          *JobResponse `json:"job,omitempty"`           // Job activo, si lo hay
}

// NewDocumentStatusResponse mapea el estado consolidado documento + job activo.
func NewDocumentStatusResponse(doc *entity.Document, job *entity.SunatJob) DocumentStatusResponse {
	out := DocumentStatusResponse{
		ID:           doc.ID,
		FullNumber:   doc.FullNumber(),
		Status:       doc.Status,
		Hash:         doc.Hash,
		SunatCode:    doc.SunatCode,
		SunatMessage: doc.SunatMessage,
		SunatTicket:  doc.SunatTicket,
	}
	if job != nil {
		j := NewJobResponse(job)
		out.Job = &j
	}
	return out
}

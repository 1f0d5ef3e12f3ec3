package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del documento electrónico en el pipeline SUNAT.
const (
	DocStatusDraft    = "DRAFT"    // Guardado para reservar serie-correlativo; aún sin firmar
	DocStatusSigned   = "SIGNED"   // XML firmado, pendiente de envío al WS
	DocStatusSent     = "SENT"     // Enviado a SUNAT; respuesta diferida pendiente (ticket)
	DocStatusAccepted = "ACCEPTED" // Aceptado por SUNAT (CDR con código 0 u observaciones)
	DocStatusError    = "ERROR"    // Rechazado por SUNAT; recuperable solo vía reset
)

// Document representa un comprobante de pago electrónico (factura, boleta, nota).
// Los campos derivados (XMLSigned, Hash, SunatCode, ...) los escribe únicamente
// el pipeline de envío; el resto de la aplicación solo los lee.
type Document struct {
	ID        string
	CompanyID string
	DocType   string // Catálogo 01: 01 factura, 03 boleta, 07 NC, 08 ND
	Series    string // F001, B001, ...
	Number    string // Correlativo con ceros a la izquierda: 00000123
	IssueDate time.Time
	Currency  string // PEN, USD

	// Adquirente
	CustomerDocType string // Catálogo 06: 6=RUC, 1=DNI, 0=sin documento
	CustomerDocNum  string
	CustomerName    string

	// Totales
	TotalTaxed   decimal.Decimal // Total gravado (base imponible)
	TotalIGV     decimal.Decimal
	TotalPayable decimal.Decimal

	// Nota de crédito/débito: comprobante afectado y motivo
	AffectedDocID string // FullNumber del comprobante que modifica (ej. F001-00000042)
	NoteReason    string

	Lines []*DocumentLine

	// Derivados del pipeline
	Status        string
	XMLSigned     string // XML UBL 2.1 firmado (contenido completo)
	Hash          string // DigestValue de la firma (se imprime en la representación gráfica)
	ZipSentBase64 string // Bytes exactos transmitidos a SUNAT (ZIP en Base64)
	SunatCode     string // ResponseCode del CDR o código de fault
	SunatMessage  string // Descripción devuelta por SUNAT
	SunatTicket   string // Ticket de envío diferido (solo tras sendSummary)
	CDRZip        string // Constancia de recepción (ZIP en Base64)

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullNumber devuelve el identificador serie-correlativo del comprobante
// (ej. "F001-00000123"). Inmutable una vez asignados Series y Number.
func (d *Document) FullNumber() string {
	return d.Series + "-" + d.Number
}

// IsTerminal indica si el documento está en un estado final del pipeline.
func (d *Document) IsTerminal() bool {
	return d.Status == DocStatusAccepted || d.Status == DocStatusError
}

// DocumentLine representa una línea de detalle del comprobante.
type DocumentLine struct {
	ID          string
	DocumentID  string
	ProductCode string
	Description string
	UnitCode    string // UN/ECE rec 20: NIU, ZZ, KGM...
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal // Valor unitario sin IGV
	UnitPrice   decimal.Decimal // Precio unitario con IGV
	IGVAffect   string          // Catálogo 07: 10 gravado, 20 exonerado, 30 inafecto
	IGV         decimal.Decimal
	LineTotal   decimal.Decimal // Valor de venta de la línea (sin IGV)
}

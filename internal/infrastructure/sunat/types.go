// Package sunat implementa la integración con el WS billService de SUNAT:
// construcción del XML UBL 2.1, empaquetado ZIP, cliente SOAP y parseo del CDR.
package sunat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
)

// Credentials credenciales SOL del emisor para el WS-Security UsernameToken.
// Username en el WS = RUC + usuario secundario SOL (ej. "20123456786MODDATOS").
type Credentials struct {
	RUC         string
	SOLUser     string
	SOLPassword string
	Environment string // beta | prod
}

// Username devuelve el usuario completo que espera el WS.
func (c Credentials) Username() string {
	return c.RUC + c.SOLUser
}

// BillService define el puerto de salida hacia el WS SUNAT. La implementación
// concreta usa SOAP; para tests se inyecta un fake. Toda falla recuperable se
// devuelve como *sunat.TransientError; cualquier otro error es permanente.
type BillService interface {
	// SendBill envía el ZIP del comprobante (modo síncrono): la respuesta trae
	// el CDR directamente y se normaliza a ACCEPTED o REJECTED.
	SendBill(ctx context.Context, zipBytes []byte, filename string, creds Credentials) (*domsunat.Outcome, error)

	// SendSummary envía un resumen/baja (modo diferido): la respuesta trae solo
	// un ticket y se normaliza a PENDING.
	SendSummary(ctx context.Context, zipBytes []byte, filename string, creds Credentials) (*domsunat.Outcome, error)

	// GetStatus consulta el ticket de un envío diferido hasta que resuelva a
	// ACCEPTED o REJECTED; mientras SUNAT siga procesando devuelve PENDING.
	GetStatus(ctx context.Context, ticket string, creds Credentials) (*domsunat.Outcome, error)

	// GetStatusCDR recupera la constancia de recepción de un comprobante ya
	// aceptado (re-descarga del CDR).
	GetStatusCDR(ctx context.Context, docType, series, number string, creds Credentials) ([]byte, error)
}

// DocumentBuildContext contexto con todos los datos necesarios para construir
// el XML del comprobante.
type DocumentBuildContext struct {
	Document *entity.Document
	Company  *entity.Company // Emisor (AccountingSupplierParty)
}

var nonDigit = regexp.MustCompile(`[^0-9]`)

// SunatFilenames genera los nombres de archivo que exige SUNAT para el XML
// interno y el ZIP: {RUC}-{tipoDoc}-{serie}-{correlativo}.
// Ejemplo: 20123456786-01-F001-00000001.xml / .zip
func SunatFilenames(company *entity.Company, doc *entity.Document) (xmlName, zipName string) {
	ruc := nonDigit.ReplaceAllString(company.RUC, "")
	base := fmt.Sprintf("%s-%s-%s-%s", ruc, doc.DocType, strings.TrimSpace(doc.Series), strings.TrimSpace(doc.Number))
	return base + ".xml", base + ".zip"
}

package sunat

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	pkgsunat "github.com/mvergaray/facturador-api/pkg/sunat"
)

// Formato de serie por tipo de comprobante: F### factura y sus notas,
// B### boleta y las suyas. La letra fija el flujo de envío (sendBill vs resumen).
var seriesPattern = regexp.MustCompile(`^[FB][A-Z0-9]{3}$`)

// ValidateDraft valida la estructura del borrador antes de firmar.
// Una falla aquí es ValidationError: fatal, sin reintento, el documento
// permanece en DRAFT y el job termina FAILED con el detalle.
func ValidateDraft(doc *entity.Document, lines []*entity.DocumentLine) error {
	if doc == nil {
		return fmt.Errorf("%w: documento nulo", domain.ErrValidation)
	}
	var errs []error

	if !pkgsunat.ValidDocTypes[doc.DocType] {
		errs = append(errs, fmt.Errorf("tipo de comprobante no soportado: %q", doc.DocType))
	}
	if !seriesPattern.MatchString(doc.Series) {
		errs = append(errs, fmt.Errorf("serie inválida %q (formato esperado F001/B001)", doc.Series))
	}
	if doc.Number == "" {
		errs = append(errs, errors.New("correlativo no asignado"))
	}
	if doc.Currency == "" {
		errs = append(errs, errors.New("moneda requerida"))
	}

	// Adquirente: una factura exige RUC válido del cliente; una boleta acepta
	// DNI o sin documento hasta el tope normativo.
	switch doc.DocType {
	case pkgsunat.DocTypeFactura:
		if doc.CustomerDocType != pkgsunat.IdentityTypeRUC {
			errs = append(errs, errors.New("una factura exige cliente con RUC (catálogo 06, tipo 6)"))
		} else if err := pkgsunat.ValidateRUC(doc.CustomerDocNum); err != nil {
			errs = append(errs, fmt.Errorf("cliente: %w", err))
		}
	case pkgsunat.DocTypeBoleta:
		if doc.CustomerDocType == pkgsunat.IdentityTypeDNI {
			if err := pkgsunat.ValidateDNI(doc.CustomerDocNum); err != nil {
				errs = append(errs, fmt.Errorf("cliente: %w", err))
			}
		}
	case pkgsunat.DocTypeNotaCredito, pkgsunat.DocTypeNotaDebito:
		if doc.AffectedDocID == "" {
			errs = append(errs, errors.New("la nota debe referenciar el comprobante afectado"))
		}
		if doc.NoteReason == "" {
			errs = append(errs, errors.New("la nota debe indicar el motivo"))
		}
	}

	// Totales coherentes con las líneas: gravado = suma de valores de venta,
	// IGV = suma de IGV por línea, total = gravado + IGV.
	if len(lines) == 0 {
		errs = append(errs, errors.New("el comprobante debe tener al menos una línea"))
	} else {
		var sumTaxed, sumIGV decimal.Decimal
		for i, l := range lines {
			if l.Quantity.LessThanOrEqual(decimal.Zero) {
				errs = append(errs, fmt.Errorf("línea %d: cantidad debe ser positiva", i+1))
			}
			if l.Description == "" {
				errs = append(errs, fmt.Errorf("línea %d: descripción requerida", i+1))
			}
			sumTaxed = sumTaxed.Add(l.LineTotal)
			sumIGV = sumIGV.Add(l.IGV)
		}
		if !doc.TotalTaxed.Equal(sumTaxed.Round(2)) {
			errs = append(errs, fmt.Errorf("total gravado (%s) no coincide con la suma de líneas (%s)",
				doc.TotalTaxed.String(), sumTaxed.Round(2).String()))
		}
		if !doc.TotalIGV.Equal(sumIGV.Round(2)) {
			errs = append(errs, fmt.Errorf("total IGV (%s) no coincide con la suma de IGV por línea (%s)",
				doc.TotalIGV.String(), sumIGV.Round(2).String()))
		}
		expected := sumTaxed.Add(sumIGV).Round(2)
		if !doc.TotalPayable.Equal(expected) {
			errs = append(errs, fmt.Errorf("importe total (%s) no coincide con gravado + IGV (%s)",
				doc.TotalPayable.String(), expected.String()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrValidation}, errs...)...)
	}
	return nil
}

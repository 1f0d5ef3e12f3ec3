package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	pkgsunat "github.com/mvergaray/facturador-api/pkg/sunat"
)

// Namespaces oficiales UBL 2.1 y firma digital (Resolución 097-2012/SUNAT).
const (
	// Namespaces por defecto según el tipo de comprobante
	NsInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NsDebitNote  = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
	// Common Aggregate Components
	NsCac = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	// Common Basic Components
	NsCbc = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	// Extension Components
	NsExt = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"
)

// XMLBuilderService construye el XML UBL 2.1 del comprobante (sin firma).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el []byte del comprobante según UBL 2.1 y los anexos SUNAT.
// El primer ext:ExtensionContent queda vacío: ahí inyecta el firmador su ds:Signature.
func (s *XMLBuilderService) Build(ctx *DocumentBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Document == nil || ctx.Company == nil {
		return nil, fmt.Errorf("sunat: faltan document o company en el contexto")
	}
	doc := ctx.Document

	rootNS, rootLocal, lineLocal, qtyLocal := rootNames(doc.DocType)
	if rootLocal == "" {
		return nil, fmt.Errorf("sunat: tipo de comprobante no soportado %q", doc.DocType)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	// El encoder emite xmlns="rootNS" a partir de Name.Space; no se declara
	// dos veces.
	root := xml.StartElement{
		Name: xml.Name{Space: rootNS, Local: rootLocal},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// ---- CRÍTICO: ext:UBLExtensions siempre como primer hijo del root.
	// Un único ExtensionContent vacío: placeholder para ds:Signature.
	writeSignatureExtension(enc)

	writeCbc(enc, "UBLVersionID", "2.1")
	writeCbc(enc, "CustomizationID", "2.0")
	writeCbc(enc, "ID", doc.FullNumber())
	writeCbc(enc, "IssueDate", doc.IssueDate.Format("2006-01-02"))
	writeCbc(enc, "IssueTime", doc.IssueDate.Format("15:04:05"))
	if doc.DocType == pkgsunat.DocTypeFactura || doc.DocType == pkgsunat.DocTypeBoleta {
		// Catálogo 51 en listID: tipo de operación
		writeCbcWithAttr(enc, "InvoiceTypeCode", doc.DocType, "listID", pkgsunat.OperationVentaInterna)
	}
	writeCbc(enc, "DocumentCurrencyCode", doc.Currency)
	writeCbc(enc, "LineCountNumeric", strconv.Itoa(len(doc.Lines)))

	// ---- Notas: motivo y referencia al comprobante afectado
	if doc.DocType == pkgsunat.DocTypeNotaCredito || doc.DocType == pkgsunat.DocTypeNotaDebito {
		if err := s.writeNoteReferences(enc, ctx); err != nil {
			return nil, err
		}
	}

	// ---- cac:AccountingSupplierParty (emisor)
	s.writeSupplierParty(enc, ctx)
	// ---- cac:AccountingCustomerParty (adquirente)
	s.writeCustomerParty(enc, ctx)
	// ---- cac:TaxTotal (IGV, catálogo 05)
	s.writeTaxTotal(enc, ctx)
	// ---- cac:LegalMonetaryTotal
	s.writeLegalMonetaryTotal(enc, ctx)
	// ---- Líneas (InvoiceLine / CreditNoteLine / DebitNoteLine)
	for i, line := range doc.Lines {
		s.writeLine(enc, ctx, i+1, line, lineLocal, qtyLocal)
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rootNames devuelve namespace, elemento raíz, elemento de línea y elemento de
// cantidad según el tipo de comprobante.
func rootNames(docType string) (ns, root, line, qty string) {
	switch docType {
	case pkgsunat.DocTypeFactura, pkgsunat.DocTypeBoleta:
		return NsInvoice, "Invoice", "InvoiceLine", "InvoicedQuantity"
	case pkgsunat.DocTypeNotaCredito:
		return NsCreditNote, "CreditNote", "CreditNoteLine", "CreditedQuantity"
	case pkgsunat.DocTypeNotaDebito:
		return NsDebitNote, "DebitNote", "DebitNoteLine", "DebitedQuantity"
	}
	return "", "", "", ""
}

// writeSignatureExtension escribe el UBLExtension vacío donde el firmador
// inyectará <ds:Signature>.
func writeSignatureExtension(enc *xml.Encoder) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "UBLExtensions"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "UBLExtension"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "ExtensionContent"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "ExtensionContent"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "UBLExtension"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "UBLExtensions"}})
}

// writeNoteReferences escribe DiscrepancyResponse (motivo) y BillingReference
// (comprobante afectado) para notas de crédito/débito.
func (s *XMLBuilderService) writeNoteReferences(enc *xml.Encoder, ctx *DocumentBuildContext) error {
	doc := ctx.Document
	if doc.AffectedDocID == "" {
		return fmt.Errorf("sunat: la nota %s no referencia comprobante afectado", doc.FullNumber())
	}
	respCode := "01" // Catálogo 09: anulación de la operación
	if doc.DocType == pkgsunat.DocTypeNotaDebito {
		respCode = "02" // Catálogo 10
	}

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "DiscrepancyResponse"}})
	writeCbc(enc, "ReferenceID", doc.AffectedDocID)
	writeCbc(enc, "ResponseCode", respCode)
	writeCbc(enc, "Description", doc.NoteReason)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "DiscrepancyResponse"}})

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "BillingReference"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "InvoiceDocumentReference"}})
	writeCbc(enc, "ID", doc.AffectedDocID)
	writeCbc(enc, "DocumentTypeCode", affectedDocType(doc.AffectedDocID))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "InvoiceDocumentReference"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "BillingReference"}})
	return nil
}

// affectedDocType infiere el tipo del comprobante afectado por la letra de su serie.
func affectedDocType(fullNumber string) string {
	if len(fullNumber) > 0 && fullNumber[0] == 'B' {
		return pkgsunat.DocTypeBoleta
	}
	return pkgsunat.DocTypeFactura
}

func (s *XMLBuilderService) writeSupplierParty(enc *xml.Encoder, ctx *DocumentBuildContext) {
	co := ctx.Company
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "AccountingSupplierParty"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "Party"}})

	// RUC del emisor (catálogo 06, schemeID 6)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PartyIdentification"}})
	writeCbcWithAttr(enc, "ID", onlyDigits(co.RUC), "schemeID", pkgsunat.IdentityTypeRUC)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PartyIdentification"}})

	if co.TradeName != "" {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PartyName"}})
		writeCbc(enc, "Name", co.TradeName)
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PartyName"}})
	}

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PartyLegalEntity"}})
	writeCbc(enc, "RegistrationName", co.RazonSocial)
	if co.Address != "" {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "RegistrationAddress"}})
		if co.Ubigeo != "" {
			writeCbc(enc, "ID", co.Ubigeo)
		}
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "AddressLine"}})
		writeCbc(enc, "Line", co.Address)
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "AddressLine"}})
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "RegistrationAddress"}})
	}
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PartyLegalEntity"}})

	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "Party"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "AccountingSupplierParty"}})
}

func (s *XMLBuilderService) writeCustomerParty(enc *xml.Encoder, ctx *DocumentBuildContext) {
	doc := ctx.Document
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "AccountingCustomerParty"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "Party"}})

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PartyIdentification"}})
	writeCbcWithAttr(enc, "ID", doc.CustomerDocNum, "schemeID", doc.CustomerDocType)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PartyIdentification"}})

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PartyLegalEntity"}})
	writeCbc(enc, "RegistrationName", doc.CustomerName)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PartyLegalEntity"}})

	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "Party"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "AccountingCustomerParty"}})
}

func (s *XMLBuilderService) writeTaxTotal(enc *xml.Encoder, ctx *DocumentBuildContext) {
	doc := ctx.Document
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxTotal"}})
	writeCbcAmount(enc, "TaxAmount", formatDecimal(doc.TotalIGV), doc.Currency)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxSubtotal"}})
	writeCbcAmount(enc, "TaxableAmount", formatDecimal(doc.TotalTaxed), doc.Currency)
	writeCbcAmount(enc, "TaxAmount", formatDecimal(doc.TotalIGV), doc.Currency)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxCategory"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxScheme"}})
	writeCbc(enc, "ID", pkgsunat.TaxCodeIGV)
	writeCbc(enc, "Name", pkgsunat.TaxNameIGV)
	writeCbc(enc, "TaxTypeCode", pkgsunat.TaxTypeCodeVAT)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxScheme"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxCategory"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxSubtotal"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxTotal"}})
}

func (s *XMLBuilderService) writeLegalMonetaryTotal(enc *xml.Encoder, ctx *DocumentBuildContext) {
	doc := ctx.Document
	local := "LegalMonetaryTotal"
	if doc.DocType == pkgsunat.DocTypeNotaDebito {
		local = "RequestedMonetaryTotal"
	}
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: local}})
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(doc.TotalTaxed), doc.Currency)
	writeCbcAmount(enc, "TaxInclusiveAmount", formatDecimal(doc.TotalPayable), doc.Currency)
	writeCbcAmount(enc, "PayableAmount", formatDecimal(doc.TotalPayable), doc.Currency)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: local}})
}

func (s *XMLBuilderService) writeLine(enc *xml.Encoder, ctx *DocumentBuildContext, lineNum int, line *entity.DocumentLine, lineLocal, qtyLocal string) {
	doc := ctx.Document
	unitCode := line.UnitCode
	if unitCode == "" {
		unitCode = pkgsunat.UnitUnidad
	}
	igvAffect := line.IGVAffect
	if igvAffect == "" {
		igvAffect = pkgsunat.IGVGravadoOneroso
	}

	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: lineLocal}})
	writeCbc(enc, "ID", strconv.Itoa(lineNum))
	writeCbcWithAttr(enc, qtyLocal, formatDecimal(line.Quantity), "unitCode", unitCode)
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(line.LineTotal), doc.Currency)

	// cac:PricingReference: precio unitario con IGV (catálogo 16, código 01)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "PricingReference"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "AlternativeConditionPrice"}})
	writeCbcAmount(enc, "PriceAmount", formatDecimal(line.UnitPrice), doc.Currency)
	writeCbc(enc, "PriceTypeCode", "01")
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "AlternativeConditionPrice"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "PricingReference"}})

	// cac:TaxTotal de la línea (IGV con afectación del catálogo 07)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxTotal"}})
	writeCbcAmount(enc, "TaxAmount", formatDecimal(line.IGV), doc.Currency)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxSubtotal"}})
	writeCbcAmount(enc, "TaxableAmount", formatDecimal(line.LineTotal), doc.Currency)
	writeCbcAmount(enc, "TaxAmount", formatDecimal(line.IGV), doc.Currency)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxCategory"}})
	writeCbc(enc, "Percent", "18.00")
	writeCbc(enc, "TaxExemptionReasonCode", igvAffect)
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "TaxScheme"}})
	writeCbc(enc, "ID", pkgsunat.TaxCodeIGV)
	writeCbc(enc, "Name", pkgsunat.TaxNameIGV)
	writeCbc(enc, "TaxTypeCode", pkgsunat.TaxTypeCodeVAT)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxScheme"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxCategory"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxSubtotal"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "TaxTotal"}})

	// cac:Item
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "Item"}})
	writeCbc(enc, "Description", line.Description)
	if line.ProductCode != "" {
		_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "SellersItemIdentification"}})
		writeCbc(enc, "ID", line.ProductCode)
		_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "SellersItemIdentification"}})
	}
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "Item"}})

	// cac:Price: valor unitario sin IGV
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: "Price"}})
	writeCbcAmount(enc, "PriceAmount", formatDecimal(line.UnitValue), doc.Currency)
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: "Price"}})

	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: lineLocal}})
}

func writeCbc(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCbc, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcAmount(enc *xml.Encoder, local, value, currency string) {
	attr := []xml.Attr{}
	if currency != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "currencyID"}, Value: currency})
	}
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCbc, Local: local}, Attr: attr})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcWithAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCbc, Local: local},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrLocal}, Value: attrValue}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func onlyDigits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

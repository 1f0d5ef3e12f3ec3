// Package sunat contiene catálogos y validaciones alineados a los Anexos de la
// Resolución 097-2012/SUNAT (facturación electrónica, Perú) y sus modificatorias.
package sunat

// =============================================================================
// Catálogo 01 - Tipos de comprobante de pago electrónico
// =============================================================================

const (
	DocTypeFactura     = "01" // Factura
	DocTypeBoleta      = "03" // Boleta de venta
	DocTypeNotaCredito = "07" // Nota de crédito
	DocTypeNotaDebito  = "08" // Nota de débito
)

// ValidDocTypes tipos de comprobante soportados por el pipeline.
var ValidDocTypes = map[string]bool{
	DocTypeFactura:     true,
	DocTypeBoleta:      true,
	DocTypeNotaCredito: true,
	DocTypeNotaDebito:  true,
}

// =============================================================================
// Catálogo 06 - Tipos de documento de identidad del adquirente
// =============================================================================

const (
	IdentityTypeDNI    = "1" // DNI
	IdentityTypeRUC    = "6" // RUC - requiere dígito verificador válido
	IdentityTypeSinDoc = "0" // Sin documento (boletas menores)
)

// =============================================================================
// Catálogo 05 - Tipos de tributo
// =============================================================================

const (
	TaxCodeIGV     = "1000" // IGV - Impuesto General a las Ventas
	TaxNameIGV     = "IGV"
	TaxTypeCodeVAT = "VAT" // Código internacional UN/ECE 5153
)

// =============================================================================
// Catálogo 07 - Afectación del IGV (por línea)
// =============================================================================

const (
	IGVGravadoOneroso = "10" // Gravado - operación onerosa
	IGVExonerado      = "20" // Exonerado
	IGVInafecto       = "30" // Inafecto
)

// =============================================================================
// Catálogo 51 - Código de tipo de operación
// =============================================================================

const (
	OperationVentaInterna = "0101" // Venta interna
)

// Unidades de medida UN/ECE rec 20 de uso frecuente en comprobantes.
const (
	UnitUnidad   = "NIU" // Unidad (bienes)
	UnitServicio = "ZZ"  // Servicios
	UnitKilogram = "KGM" // Kilogramo
	UnitLitre    = "LTR" // Litro
)

// =============================================================================
// Rangos de códigos de respuesta SUNAT (CDR ResponseCode y faults del WS).
// La clasificación transitorio/permanente del cliente SOAP se apoya en estos
// rangos: 0100-1999 excepciones del sistema (reintentables), 2000-3999 rechazo
// del comprobante (permanente), 4000+ aceptado con observaciones.
// =============================================================================

const (
	ResponseCodeAccepted = "0"

	systemErrorFrom = 100
	systemErrorTo   = 1999
	rejectionFrom   = 2000
	rejectionTo     = 3999
	observationFrom = 4000
)

// IsSystemError indica si un código numérico corresponde a una excepción del
// sistema SUNAT (condición transitoria, candidato a reintento).
func IsSystemError(code int) bool {
	return code >= systemErrorFrom && code <= systemErrorTo
}

// IsRejection indica si un código corresponde a un rechazo del comprobante
// (condición permanente, no reintentable).
func IsRejection(code int) bool {
	return code >= rejectionFrom && code <= rejectionTo
}

// IsObservation indica si un código corresponde a una observación: el
// comprobante fue aceptado pero con reparos informativos.
func IsObservation(code int) bool {
	return code >= observationFrom
}

// Códigos de estado de getStatus (consulta de ticket).
const (
	TicketStatusProcessed  = "0"  // Procesado correctamente; content = CDR
	TicketStatusInProcess  = "98" // En proceso; reintentar más tarde
	TicketStatusWithErrors = "99" // Procesado con errores; content = CDR con rechazo
)

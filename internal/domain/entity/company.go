package entity

import "time"

// Ambientes SUNAT.
const (
	SunatEnvBeta = "beta" // Pruebas (e-beta.sunat.gob.pe)
	SunatEnvProd = "prod" // Producción (e-factura.sunat.gob.pe)
	SunatEnvDev  = "dev"  // Local: firma pero no envía al WS
)

// Company representa al emisor: datos fiscales y credenciales SUNAT por tenant.
// El pipeline la trata como configuración inyectada de solo lectura.
type Company struct {
	ID          string
	RUC         string
	RazonSocial string
	TradeName   string
	Address     string
	Ubigeo      string // Código INEI de distrito (ej. 150101 Lima)

	// Credenciales SOL y certificado de firma
	SOLUser      string // Usuario secundario; el WS espera RUC+SOLUser como username
	SOLPassword  string
	CertPath     string
	CertKeyPath  string
	CertPassword string
	Environment  string // beta | prod | dev

	CreatedAt time.Time
	UpdatedAt time.Time
}

package repository

import (
	"context"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
)

// CompanyRepository lectura de datos del emisor (credenciales y certificado SUNAT).
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}

package pipeline

import (
	"context"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	"github.com/mvergaray/facturador-api/pkg/config"
)

// CompanyDefaults decora el repositorio de empresas rellenando con la
// configuración del proceso los campos SUNAT que la fila no define. Una
// instalación mono-emisor configura credenciales y certificado por variables
// de entorno; una multi-emisor los guarda por fila y el decorador no toca nada.
type CompanyDefaults struct {
	repo repository.CompanyRepository
	cfg  config.SUNATConfig
}

// NewCompanyDefaults construye el decorador.
func NewCompanyDefaults(repo repository.CompanyRepository, cfg config.SUNATConfig) *CompanyDefaults {
	return &CompanyDefaults{repo: repo, cfg: cfg}
}

var _ repository.CompanyRepository = (*CompanyDefaults)(nil)

// GetByID delega en el repositorio y aplica los defaults de configuración.
func (d *CompanyDefaults) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	company, err := d.repo.GetByID(ctx, id)
	if err != nil || company == nil {
		return company, err
	}
	if company.Environment == "" {
		company.Environment = d.cfg.Env
	}
	if company.SOLUser == "" {
		company.SOLUser = d.cfg.SOLUser
	}
	if company.SOLPassword == "" {
		company.SOLPassword = d.cfg.SOLPassword
	}
	if company.CertPath == "" {
		company.CertPath = d.cfg.CertPath
		company.CertKeyPath = d.cfg.CertKeyPath
		company.CertPassword = d.cfg.CertPassword
	}
	return company, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación de CompanyRepository (solo lectura para el pipeline).
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// GetByID devuelve el emisor con sus credenciales SUNAT, o nil si no existe.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	query := `
		SELECT id, ruc, razon_social, trade_name, address, ubigeo,
		       sol_user, sol_password, cert_path, cert_key_path, cert_password, environment,
		       created_at, updated_at
		FROM companies WHERE id = $1`
	var c entity.Company
	var tradeName, address, ubigeo, certKeyPath, certPassword *string
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.RUC, &c.RazonSocial, &tradeName, &address, &ubigeo,
		&c.SOLUser, &c.SOLPassword, &c.CertPath, &certKeyPath, &certPassword, &c.Environment,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	c.TradeName = derefStr(tradeName)
	c.Address = derefStr(address)
	c.Ubigeo = derefStr(ubigeo)
	c.CertKeyPath = derefStr(certKeyPath)
	c.CertPassword = derefStr(certPassword)
	return &c, nil
}

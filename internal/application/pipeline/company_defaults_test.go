package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/pkg/config"
)

type fakeCompanyRepo struct {
	company *entity.Company
}

func (f *fakeCompanyRepo) GetByID(_ context.Context, _ string) (*entity.Company, error) {
	return f.company, nil
}

func TestCompanyDefaults_RellenaCamposVacios(t *testing.T) {
	repo := &fakeCompanyRepo{company: &entity.Company{
		ID:  "comp-1",
		RUC: "20100070970",
	}}
	d := NewCompanyDefaults(repo, config.SUNATConfig{
		Env:          "beta",
		SOLUser:      "MODDATOS",
		SOLPassword:  "moddatos",
		CertPath:     "/certs/firma.p12",
		CertPassword: "secreto",
	})

	company, err := d.GetByID(context.Background(), "comp-1")
	require.NoError(t, err)

	assert.Equal(t, "beta", company.Environment)
	assert.Equal(t, "MODDATOS", company.SOLUser)
	assert.Equal(t, "moddatos", company.SOLPassword)
	assert.Equal(t, "/certs/firma.p12", company.CertPath)
	assert.Equal(t, "secreto", company.CertPassword)
}

func TestCompanyDefaults_NoPisaLaFila(t *testing.T) {
	repo := &fakeCompanyRepo{company: &entity.Company{
		ID:          "comp-1",
		RUC:         "20100070970",
		Environment: "prod",
		SOLUser:     "USUARIO1",
		SOLPassword: "clave1",
		CertPath:    "/certs/propio.pem",
	}}
	d := NewCompanyDefaults(repo, config.SUNATConfig{
		Env:         "beta",
		SOLUser:     "MODDATOS",
		SOLPassword: "moddatos",
		CertPath:    "/certs/firma.p12",
	})

	company, err := d.GetByID(context.Background(), "comp-1")
	require.NoError(t, err)

	assert.Equal(t, "prod", company.Environment)
	assert.Equal(t, "USUARIO1", company.SOLUser)
	assert.Equal(t, "clave1", company.SOLPassword)
	assert.Equal(t, "/certs/propio.pem", company.CertPath)
}

func TestCompanyDefaults_EmpresaInexistente(t *testing.T) {
	d := NewCompanyDefaults(&fakeCompanyRepo{}, config.SUNATConfig{Env: "beta"})

	company, err := d.GetByID(context.Background(), "no-existe")
	require.NoError(t, err)
	assert.Nil(t, company)
}

package pipeline

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	infrasunat "github.com/mvergaray/facturador-api/internal/infrastructure/sunat"
	"github.com/mvergaray/facturador-api/internal/infrastructure/sunat/signer"
)

// writeTestCertPEM genera un certificado RSA autofirmado y lo escribe como par
// PEM en dir. Devuelve las rutas del certificado y de la llave.
func writeTestCertPEM(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "PRUEBAS FACTURADOR"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "firma.pem")
	keyPath = filepath.Join(dir, "firma-key.pem")
	require.NoError(t, os.WriteFile(certPath,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	return certPath, keyPath
}

func testCompanyWithCert(t *testing.T, env string) *entity.Company {
	t.Helper()
	certPath, keyPath := writeTestCertPEM(t, t.TempDir())
	return &entity.Company{
		ID:          "comp-1",
		RUC:         "20100070970",
		RazonSocial: "EMPRESA DE PRUEBAS S.A.C.",
		Address:     "AV. SIEMPRE VIVA 123",
		Ubigeo:      "150101",
		SOLUser:     "MODDATOS",
		SOLPassword: "moddatos",
		CertPath:    certPath,
		CertKeyPath: keyPath,
		Environment: env,
	}
}

// fakeBillService guarda lo que se le pidió y devuelve un outcome programado.
type fakeBillService struct {
	outcome  *domsunat.Outcome
	err      error
	zipName  string
	zipBytes []byte
	ticket   string
	calls    int
}

func (f *fakeBillService) SendBill(_ context.Context, zipBytes []byte, filename string, _ infrasunat.Credentials) (*domsunat.Outcome, error) {
	f.calls++
	f.zipBytes = zipBytes
	f.zipName = filename
	return f.outcome, f.err
}

func (f *fakeBillService) SendSummary(_ context.Context, zipBytes []byte, filename string, _ infrasunat.Credentials) (*domsunat.Outcome, error) {
	f.calls++
	f.zipBytes = zipBytes
	f.zipName = filename
	return f.outcome, f.err
}

func (f *fakeBillService) GetStatus(_ context.Context, ticket string, _ infrasunat.Credentials) (*domsunat.Outcome, error) {
	f.calls++
	f.ticket = ticket
	return f.outcome, f.err
}

func (f *fakeBillService) GetStatusCDR(_ context.Context, _, _, _ string, _ infrasunat.Credentials) ([]byte, error) {
	f.calls++
	return nil, f.err
}

var _ infrasunat.BillService = (*fakeBillService)(nil)

func newTestSubmitter(company *entity.Company, client infrasunat.BillService) *Submitter {
	return NewSubmitter(
		&fakeCompanyRepo{company: company},
		infrasunat.NewXMLBuilderService(),
		signer.NewDigitalSignatureService(),
		client,
		testLogger(),
	)
}

func draftDoc() *entity.Document {
	doc := validDraft()
	doc.ID = "doc-1"
	doc.Number = "00000123"
	doc.Status = entity.DocStatusDraft
	return doc
}

func TestProcess_DevFirmaSinEnviar(t *testing.T) {
	client := &fakeBillService{}
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvDev), client)

	doc := draftDoc()
	job := queuedJob("doc-1")

	outcome, err := s.Process(context.Background(), doc, job)
	require.NoError(t, err)

	// Outcome nulo: el scheduler marca el job DONE con el documento en SIGNED.
	assert.Nil(t, outcome)
	assert.Equal(t, entity.DocStatusSigned, doc.Status)
	assert.NotEmpty(t, doc.Hash)
	assert.Contains(t, doc.XMLSigned, "<ds:Signature")
	assert.Zero(t, client.calls, "en dev no se llama al WS")

	zipBytes, decErr := base64.StdEncoding.DecodeString(doc.ZipSentBase64)
	require.NoError(t, decErr)
	assert.NotEmpty(t, zipBytes)
}

func TestProcess_FirmaYEnviaAceptado(t *testing.T) {
	client := &fakeBillService{outcome: &domsunat.Outcome{
		Kind:    domsunat.OutcomeAccepted,
		Code:    "0",
		Message: "La Factura numero F001-00000123, ha sido aceptada",
		CDR:     []byte("cdr-zip"),
	}}
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvBeta), client)

	doc := draftDoc()
	job := queuedJob("doc-1")

	outcome, err := s.Process(context.Background(), doc, job)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, entity.DocStatusAccepted, doc.Status)
	assert.Equal(t, "0", doc.SunatCode)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("cdr-zip")), doc.CDRZip)
	assert.Equal(t, "20100070970-01-F001-00000123.zip", client.zipName)
	assert.NotEmpty(t, client.zipBytes, "se transmite el ZIP firmado")
}

func TestProcess_ReintentoNoVuelveAFirmar(t *testing.T) {
	client := &fakeBillService{outcome: &domsunat.Outcome{Kind: domsunat.OutcomeAccepted, Code: "0"}}
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvBeta), client)

	// Documento ya SIGNED de un intento anterior: la firma previa se reutiliza.
	doc := draftDoc()
	doc.Status = entity.DocStatusSigned
	doc.XMLSigned = "<Invoice/>"
	doc.Hash = "hash-previo"
	doc.ZipSentBase64 = base64.StdEncoding.EncodeToString([]byte("zip-previo"))

	_, err := s.Process(context.Background(), doc, queuedJob("doc-1"))
	require.NoError(t, err)

	assert.Equal(t, "hash-previo", doc.Hash, "no se regenera la firma en reintentos")
	assert.Equal(t, []byte("zip-previo"), client.zipBytes, "se reenvían los mismos bytes")
}

func TestProcess_CheckTicketConsultaElTicket(t *testing.T) {
	client := &fakeBillService{outcome: &domsunat.Outcome{
		Kind:    domsunat.OutcomeRejected,
		Code:    "2335",
		Message: "El documento electrónico ingresado ha sido alterado",
	}}
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvBeta), client)

	doc := draftDoc()
	doc.Status = entity.DocStatusSent
	doc.XMLSigned = "<Invoice/>"
	doc.SunatTicket = "1705123456789"

	job := queuedJob("doc-1")
	job.Action = entity.JobActionCheckTicket
	job.Ticket = "1705123456789"

	_, err := s.Process(context.Background(), doc, job)
	require.NoError(t, err)

	assert.Equal(t, "1705123456789", client.ticket)
	assert.Equal(t, entity.DocStatusError, doc.Status)
	assert.Equal(t, "2335", doc.SunatCode)
}

func TestProcess_CheckTicketSinTicketFalla(t *testing.T) {
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvBeta), &fakeBillService{})

	doc := draftDoc()
	doc.Status = entity.DocStatusSent
	doc.XMLSigned = "<Invoice/>"

	job := queuedJob("doc-1")
	job.Action = entity.JobActionCheckTicket

	_, err := s.Process(context.Background(), doc, job)
	assert.Error(t, err)
}

func TestProcess_CertificadoInexistenteEsErrorDeFirma(t *testing.T) {
	company := testCompanyWithCert(t, entity.SunatEnvBeta)
	company.CertPath = "/no/existe/firma.pem"
	company.CertKeyPath = ""
	s := newTestSubmitter(company, &fakeBillService{})

	doc := draftDoc()
	_, err := s.Process(context.Background(), doc, queuedJob("doc-1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSigning)
	assert.Equal(t, entity.DocStatusDraft, doc.Status, "el borrador no cambia si la firma falla")
}

func TestProcess_BorradorInvalidoNoSeFirma(t *testing.T) {
	s := newTestSubmitter(testCompanyWithCert(t, entity.SunatEnvBeta), &fakeBillService{})

	doc := draftDoc()
	doc.TotalIGV = doc.TotalIGV.Add(doc.TotalIGV) // totales incoherentes

	_, err := s.Process(context.Background(), doc, queuedJob("doc-1"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, entity.DocStatusDraft, doc.Status)
}

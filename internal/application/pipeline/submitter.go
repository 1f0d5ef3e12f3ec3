package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	infrasunat "github.com/mvergaray/facturador-api/internal/infrastructure/sunat"
	"github.com/mvergaray/facturador-api/internal/infrastructure/sunat/signer"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	"github.com/mvergaray/facturador-api/pkg/logger"
	pkgsunat "github.com/mvergaray/facturador-api/pkg/sunat"
)

// Submitter implementa Processor: valida, firma y transmite comprobantes.
//
// Modos de operación (Company.Environment):
//   - "dev"  → valida y firma, NO envía al WS. El job termina DONE con el
//     documento en SIGNED.
//   - "beta" → envía al ambiente de pruebas e-beta.sunat.gob.pe.
//   - "prod" → envía al ambiente de producción e-factura.sunat.gob.pe.
type Submitter struct {
	companyRepo repository.CompanyRepository
	xmlBuilder  *infrasunat.XMLBuilderService
	signer      pkgsunat.Signer
	client      infrasunat.BillService
	log         *logger.Logger
}

// NewSubmitter construye el procesador con todas sus dependencias.
func NewSubmitter(
	companyRepo repository.CompanyRepository,
	xmlBuilder *infrasunat.XMLBuilderService,
	sgn pkgsunat.Signer,
	client infrasunat.BillService,
	log *logger.Logger,
) *Submitter {
	return &Submitter{
		companyRepo: companyRepo,
		xmlBuilder:  xmlBuilder,
		signer:      sgn,
		client:      client,
		log:         log.WithComponent("submitter"),
	}
}

var _ Processor = (*Submitter)(nil)

// Process ejecuta un intento completo sobre el documento.
func (s *Submitter) Process(ctx context.Context, doc *entity.Document, job *entity.SunatJob) (*domsunat.Outcome, error) {
	company, err := s.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil {
		return nil, domsunat.NewTransient("fetch-company", err)
	}
	if company == nil {
		return nil, fmt.Errorf("%w: empresa %s", domain.ErrNotFound, doc.CompanyID)
	}

	// Firma solo si el documento todavía es DRAFT. En un reintento tras una
	// falla de red el documento ya quedó SIGNED y no se vuelve a firmar.
	if doc.Status == entity.DocStatusDraft {
		if err := s.sign(doc, company); err != nil {
			return nil, err
		}
	}

	if company.Environment == entity.SunatEnvDev {
		s.log.Debug().Str("doc_id", doc.ID).Msg("entorno dev: firmado sin envío")
		return nil, nil
	}

	creds := infrasunat.Credentials{
		RUC:         company.RUC,
		SOLUser:     company.SOLUser,
		SOLPassword: company.SOLPassword,
		Environment: company.Environment,
	}

	var outcome *domsunat.Outcome
	switch job.Action {
	case entity.JobActionSend:
		zipBytes, decErr := base64.StdEncoding.DecodeString(doc.ZipSentBase64)
		if decErr != nil {
			return nil, fmt.Errorf("zip_sent corrupto para %s: %w", doc.FullNumber(), decErr)
		}
		_, zipName := infrasunat.SunatFilenames(company, doc)
		outcome, err = s.client.SendBill(ctx, zipBytes, zipName, creds)

	case entity.JobActionCheckTicket:
		if job.Ticket == "" {
			return nil, fmt.Errorf("job %s sin ticket para consultar", job.ID)
		}
		outcome, err = s.client.GetStatus(ctx, job.Ticket, creds)

	default:
		return nil, fmt.Errorf("acción de job desconocida %q", job.Action)
	}
	if err != nil {
		return nil, err
	}

	ch, err := domsunat.Transition(doc, domsunat.Input{Outcome: outcome})
	if err != nil {
		return nil, err
	}
	domsunat.Apply(doc, ch)
	return outcome, nil
}

// sign valida el borrador, construye el XML UBL, lo firma y aplica la
// transición DRAFT -> SIGNED sobre la copia en memoria.
func (s *Submitter) sign(doc *entity.Document, company *entity.Company) error {
	if err := domsunat.ValidateDraft(doc, doc.Lines); err != nil {
		return err
	}

	xmlBytes, err := s.xmlBuilder.Build(&infrasunat.DocumentBuildContext{Document: doc, Company: company})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}

	cert, err := signer.LoadForCompany(company.CertPath, company.CertKeyPath, company.CertPassword)
	if err != nil {
		return fmt.Errorf("%w: certificado de %s: %v", domain.ErrSigning, company.RUC, err)
	}

	signedXML, hash, err := s.signer.Sign(xmlBytes, cert)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}

	xmlName, _ := infrasunat.SunatFilenames(company, doc)
	zipBytes, err := infrasunat.CompressXMLToZip(signedXML, xmlName)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigning, err)
	}

	ch, err := domsunat.Transition(doc, domsunat.Input{Sign: &domsunat.SignResult{
		XMLSigned:     string(signedXML),
		Hash:          hash,
		ZipSentBase64: base64.StdEncoding.EncodeToString(zipBytes),
	}})
	if err != nil {
		return err
	}
	domsunat.Apply(doc, ch)
	return nil
}

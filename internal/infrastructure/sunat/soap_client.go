package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	pkgsunat "github.com/mvergaray/facturador-api/pkg/sunat"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	billServiceURLBeta = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	billServiceURLProd = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"

	soapEnvNS  = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS  = "http://service.sunat.gob.pe"
	wsseNS     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	soapAction = "" // SUNAT no exige SOAPAction; se envía vacío
)

// ── Implementación SOAP ────────────────────────────────────────────────────────

// SOAPBillClient implementa BillService hablando SOAP 1.1 con el billService de
// SUNAT. Usa net/http de la stdlib; la autenticación va en el header WS-Security
// (UsernameToken con RUC+usuario SOL y clave SOL).
type SOAPBillClient struct {
	httpClient *http.Client

	// urlOverride reemplaza el endpoint por entorno; solo para tests.
	urlOverride string
}

// NewSOAPBillClient construye el cliente con un timeout de red generoso (60 s):
// el WS SUNAT puede tardar varios segundos en responder, sobre todo en beta.
func NewSOAPBillClient() *SOAPBillClient {
	return &SOAPBillClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// NewSOAPBillClientWithURL construye el cliente apuntando a un endpoint fijo
// (tests con httptest.Server).
func NewSOAPBillClientWithURL(url string) *SOAPBillClient {
	c := NewSOAPBillClient()
	c.urlOverride = url
	return c
}

func (c *SOAPBillClient) endpoint(env string) (string, error) {
	if c.urlOverride != "" {
		return c.urlOverride, nil
	}
	switch env {
	case "beta", "":
		return billServiceURLBeta, nil
	case "prod":
		return billServiceURLProd, nil
	}
	return "", fmt.Errorf("sunat: entorno desconocido %q (usar 'beta' o 'prod')", env)
}

// ── Estructuras SOAP de petición ──────────────────────────────────────────────

type soapEnvelope struct {
	XMLName   xml.Name   `xml:"soapenv:Envelope"`
	XmlnsS    string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer  string     `xml:"xmlns:ser,attr"`
	XmlnsWsse string     `xml:"xmlns:wsse,attr"`
	Header    soapHeader `xml:"soapenv:Header"`
	Body      soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	UsernameToken wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// sendBillBody cuerpo de la operación sendBill (envío síncrono).
type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

// sendSummaryBody cuerpo de la operación sendSummary (envío diferido con ticket).
type sendSummaryBody struct {
	XMLName     xml.Name `xml:"ser:sendSummary"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"`
}

// getStatusBody cuerpo de la operación getStatus (consulta de ticket).
type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

// getStatusCdrBody cuerpo de la operación getStatusCdr (re-descarga de CDR).
type getStatusCdrBody struct {
	XMLName           xml.Name `xml:"ser:getStatusCdr"`
	RucComprobante    string   `xml:"rucComprobante"`
	TipoComprobante   string   `xml:"tipoComprobante"`
	SerieComprobante  string   `xml:"serieComprobante"`
	NumeroComprobante string   `xml:"numeroComprobante"`
}

// ── Estructuras SOAP de respuesta ─────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBillResponse     *sendBillResponse    `xml:"sendBillResponse"`
	SendSummaryResponse  *sendSummaryResponse `xml:"sendSummaryResponse"`
	GetStatusResponse    *getStatusResponse   `xml:"getStatusResponse"`
	GetStatusCdrResponse *getStatusResponse   `xml:"getStatusCdrResponse"`
	Fault                *soapFault           `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"` // CDR ZIP en Base64
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status struct {
		StatusCode string `xml:"statusCode"`
		Content    string `xml:"content"` // CDR ZIP en Base64 (cuando aplica)
	} `xml:"status"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SendBill envía el ZIP del comprobante y normaliza el CDR de la respuesta.
func (c *SOAPBillClient) SendBill(ctx context.Context, zipBytes []byte, filename string, creds Credentials) (*domsunat.Outcome, error) {
	body := &sendBillBody{
		FileName:    filename,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	resp, err := c.call(ctx, "sendBill", body, creds)
	if err != nil {
		return nil, err
	}
	if resp.SendBillResponse == nil || resp.SendBillResponse.ApplicationResponse == "" {
		return nil, domsunat.NewTransient("sendBill", fmt.Errorf("respuesta sin applicationResponse"))
	}
	cdrZip, err := base64.StdEncoding.DecodeString(resp.SendBillResponse.ApplicationResponse)
	if err != nil {
		return nil, fmt.Errorf("sunat: applicationResponse no es Base64 válido: %w", err)
	}
	cdr, err := ParseCDR(cdrZip)
	if err != nil {
		return nil, fmt.Errorf("sunat: %w", err)
	}
	return OutcomeFromCDR(cdr, cdrZip), nil
}

// SendSummary envía un resumen y devuelve el ticket a consultar.
func (c *SOAPBillClient) SendSummary(ctx context.Context, zipBytes []byte, filename string, creds Credentials) (*domsunat.Outcome, error) {
	body := &sendSummaryBody{
		FileName:    filename,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	resp, err := c.call(ctx, "sendSummary", body, creds)
	if err != nil {
		return nil, err
	}
	if resp.SendSummaryResponse == nil || resp.SendSummaryResponse.Ticket == "" {
		return nil, domsunat.NewTransient("sendSummary", fmt.Errorf("respuesta sin ticket"))
	}
	return domsunat.Pending(resp.SendSummaryResponse.Ticket), nil
}

// GetStatus consulta el ticket. statusCode 98 = en proceso (PENDING de nuevo);
// 0 = procesado (content trae el CDR); 99 = procesado con errores (content trae
// el CDR con el rechazo, o no hay content y el rechazo viene solo por código).
func (c *SOAPBillClient) GetStatus(ctx context.Context, ticket string, creds Credentials) (*domsunat.Outcome, error) {
	resp, err := c.call(ctx, "getStatus", &getStatusBody{Ticket: ticket}, creds)
	if err != nil {
		return nil, err
	}
	if resp.GetStatusResponse == nil {
		return nil, domsunat.NewTransient("getStatus", fmt.Errorf("respuesta sin status"))
	}
	st := resp.GetStatusResponse.Status

	switch st.StatusCode {
	case pkgsunat.TicketStatusInProcess:
		return domsunat.Pending(ticket), nil

	case pkgsunat.TicketStatusProcessed, pkgsunat.TicketStatusWithErrors:
		if st.Content == "" {
			if st.StatusCode == pkgsunat.TicketStatusProcessed {
				return nil, domsunat.NewTransient("getStatus", fmt.Errorf("statusCode 0 sin CDR"))
			}
			return domsunat.Rejected(st.StatusCode, "procesado con errores sin CDR"), nil
		}
		cdrZip, err := base64.StdEncoding.DecodeString(st.Content)
		if err != nil {
			return nil, fmt.Errorf("sunat: content no es Base64 válido: %w", err)
		}
		cdr, err := ParseCDR(cdrZip)
		if err != nil {
			return nil, fmt.Errorf("sunat: %w", err)
		}
		return OutcomeFromCDR(cdr, cdrZip), nil

	default:
		// Código de estado desconocido: condición del lado SUNAT, reintentable.
		return nil, domsunat.NewTransient("getStatus", fmt.Errorf("statusCode desconocido %q", st.StatusCode))
	}
}

// GetStatusCDR re-descarga la constancia de un comprobante ya procesado.
func (c *SOAPBillClient) GetStatusCDR(ctx context.Context, docType, series, number string, creds Credentials) ([]byte, error) {
	body := &getStatusCdrBody{
		RucComprobante:    creds.RUC,
		TipoComprobante:   docType,
		SerieComprobante:  series,
		NumeroComprobante: strings.TrimLeft(number, "0"),
	}
	resp, err := c.call(ctx, "getStatusCdr", body, creds)
	if err != nil {
		return nil, err
	}
	if resp.GetStatusCdrResponse == nil || resp.GetStatusCdrResponse.Status.Content == "" {
		return nil, fmt.Errorf("sunat: getStatusCdr sin contenido")
	}
	return base64.StdEncoding.DecodeString(resp.GetStatusCdrResponse.Status.Content)
}

// ── Transporte común ──────────────────────────────────────────────────────────

// call serializa el envelope, ejecuta el POST y clasifica las fallas:
// errores de red/timeout y HTTP 5xx son transitorios; 401/403 y faults de
// negocio son permanentes; faults con código 0100-1999 son excepciones del
// sistema SUNAT y también se reintentan.
func (c *SOAPBillClient) call(ctx context.Context, op string, body interface{}, creds Credentials) (*soapResponseBody, error) {
	url, err := c.endpoint(creds.Environment)
	if err != nil {
		return nil, err
	}

	envelope := soapEnvelope{
		XmlnsS:    soapEnvNS,
		XmlnsSer:  serviceNS,
		XmlnsWsse: wsseNS,
		Header: soapHeader{Security: wsseSecurity{UsernameToken: wsseUsernameToken{
			Username: creds.Username(),
			Password: creds.SOLPassword,
		}}},
		Body: soapBody{Content: body},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout, DNS, conexión rechazada: siempre transitorio.
		return nil, domsunat.NewTransient(op, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20)) // max 8 MB (CDR adentro)
	if err != nil {
		return nil, domsunat.NewTransient(op, fmt.Errorf("leer respuesta: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("sunat: credenciales SOL rechazadas (HTTP %d)", resp.StatusCode)
	}

	var envResp soapResponseEnvelope
	parseErr := xml.Unmarshal(rawBody, &envResp)

	// SUNAT devuelve los faults con HTTP 500, así que el fault se clasifica
	// antes de tratar el código HTTP: un rechazo de negocio con 500 sigue
	// siendo permanente.
	if parseErr == nil && envResp.Body.Fault != nil {
		return nil, classifyFault(op, envResp.Body.Fault)
	}
	if resp.StatusCode >= 500 {
		return nil, domsunat.NewTransient(op, fmt.Errorf("HTTP %d del WS", resp.StatusCode))
	}
	if parseErr != nil {
		return nil, domsunat.NewTransient(op, fmt.Errorf("respuesta SOAP no parseable: %w", parseErr))
	}
	return &envResp.Body, nil
}

// classifyFault decide si un SOAP Fault es transitorio o permanente a partir
// del código numérico SUNAT embebido en faultcode/faultstring.
func classifyFault(op string, f *soapFault) error {
	code := extractFaultCode(f)
	if n, err := strconv.Atoi(code); err == nil && pkgsunat.IsSystemError(n) {
		return domsunat.NewTransient(op, fmt.Errorf("excepción del sistema SUNAT [%s]: %s", code, f.FaultString))
	}
	return fmt.Errorf("sunat: fault [%s]: %s", code, f.FaultString)
}

// extractFaultCode obtiene el código numérico del fault. SUNAT lo devuelve en
// faultcode (a veces con prefijo "soap-env:Client.") o al inicio de faultstring.
func extractFaultCode(f *soapFault) string {
	code := f.FaultCode
	if idx := strings.LastIndex(code, "."); idx != -1 {
		code = code[idx+1:]
	}
	if idx := strings.LastIndex(code, ":"); idx != -1 {
		code = code[idx+1:]
	}
	code = strings.TrimSpace(code)
	if _, err := strconv.Atoi(code); err == nil {
		return code
	}
	// Algunos faults traen el código solo en faultstring: "0109 - ..."
	fields := strings.Fields(f.FaultString)
	if len(fields) > 0 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			return fields[0]
		}
	}
	return code
}

var _ BillService = (*SOAPBillClient)(nil)

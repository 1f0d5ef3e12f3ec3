package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	pkgsunat "github.com/mvergaray/facturador-api/pkg/sunat"
)

// CDR es la constancia de recepción de SUNAT: el ApplicationResponse dentro
// del ZIP que devuelve sendBill/getStatus.
type CDR struct {
	ResponseCode string // "0" aceptado; 2000-3999 rechazo; >= 4000 observación
	Description  string
	DocumentRef  string // Serie-correlativo del comprobante al que responde
	Notes        []string
}

// applicationResponse estructura mínima del UBL ApplicationResponse para extraer
// el veredicto; se ignora el resto del documento.
type applicationResponse struct {
	XMLName          xml.Name `xml:"ApplicationResponse"`
	DocumentResponse struct {
		Response struct {
			ResponseCode string `xml:"ResponseCode"`
			Description  string `xml:"Description"`
		} `xml:"Response"`
		DocumentReference struct {
			ID string `xml:"ID"`
		} `xml:"DocumentReference"`
	} `xml:"DocumentResponse"`
	Notes []string `xml:"Note"`
}

// ParseCDR abre el ZIP del CDR y extrae código, descripción y referencia del
// ApplicationResponse. SUNAT suele emitir estos XML en ISO-8859-1; el decoder
// transcodifica según la declaración del documento.
func ParseCDR(cdrZip []byte) (*CDR, error) {
	xmlBytes, err := ExtractFirstFile(cdrZip)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	dec.CharsetReader = charsetReader

	var ar applicationResponse
	if err := dec.Decode(&ar); err != nil {
		return nil, fmt.Errorf("cdr: parsear ApplicationResponse: %w", err)
	}
	return &CDR{
		ResponseCode: strings.TrimSpace(ar.DocumentResponse.Response.ResponseCode),
		Description:  strings.TrimSpace(ar.DocumentResponse.Response.Description),
		DocumentRef:  strings.TrimSpace(ar.DocumentResponse.DocumentReference.ID),
		Notes:        ar.Notes,
	}, nil
}

// charsetReader soporta los encodings que emite SUNAT en sus CDR.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "latin1", "windows-1252":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("cdr: encoding no soportado %q", charset)
}

// OutcomeFromCDR traduce el veredicto del CDR al resultado tipado del pipeline:
// código 0 u observación (>= 4000) es aceptación; el resto es rechazo permanente.
func OutcomeFromCDR(cdr *CDR, cdrZip []byte) *domsunat.Outcome {
	code, err := strconv.Atoi(cdr.ResponseCode)
	if err != nil {
		// Código no numérico: tratarlo como rechazo con el texto tal cual.
		return domsunat.Rejected(cdr.ResponseCode, cdr.Description)
	}
	if cdr.ResponseCode == pkgsunat.ResponseCodeAccepted || pkgsunat.IsObservation(code) {
		return domsunat.Accepted(cdr.ResponseCode, cdr.Description, cdrZip)
	}
	return domsunat.Rejected(cdr.ResponseCode, cdr.Description)
}

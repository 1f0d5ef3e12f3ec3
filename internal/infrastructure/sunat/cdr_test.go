package sunat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
)

func buildCDRZip(t *testing.T, xmlContent string) []byte {
	t.Helper()
	zipBytes, err := CompressXMLToZip([]byte(xmlContent), "R-20100070970-01-F001-00000001.xml")
	require.NoError(t, err)
	return zipBytes
}

func TestParseCDR_Aceptado(t *testing.T) {
	zipBytes := buildCDRZip(t, `<?xml version="1.0" encoding="UTF-8"?>
<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"
  xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
  xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:Note>La Factura numero F001-00000001, ha sido aceptada</cbc:Note>
  <cac:DocumentResponse>
    <cac:Response>
      <cbc:ResponseCode>0</cbc:ResponseCode>
      <cbc:Description>La Factura numero F001-00000001, ha sido aceptada</cbc:Description>
    </cac:Response>
    <cac:DocumentReference><cbc:ID>F001-00000001</cbc:ID></cac:DocumentReference>
  </cac:DocumentResponse>
</ar:ApplicationResponse>`)

	cdr, err := ParseCDR(zipBytes)
	require.NoError(t, err)

	assert.Equal(t, "0", cdr.ResponseCode)
	assert.Equal(t, "F001-00000001", cdr.DocumentRef)
	assert.Len(t, cdr.Notes, 1)
}

func TestParseCDR_ISO88591(t *testing.T) {
	// SUNAT emite CDR en ISO-8859-1; la eñe y las tildes llegan como bytes
	// latin1 y deben transcodificarse.
	latin1Body := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?>
<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2"
  xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
  xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cac:DocumentResponse>
    <cac:Response>
      <cbc:ResponseCode>2335</cbc:ResponseCode>
      <cbc:Description>N` + string([]byte{0xFA}) + `mero inv` + string([]byte{0xE1}) + `lido</cbc:Description>
    </cac:Response>
  </cac:DocumentResponse>
</ar:ApplicationResponse>`)
	zipBytes, err := CompressXMLToZip(latin1Body, "R-x.xml")
	require.NoError(t, err)

	cdr, err := ParseCDR(zipBytes)
	require.NoError(t, err)

	assert.Equal(t, "Número inválido", cdr.Description)
}

func TestParseCDR_ZipCorrupto(t *testing.T) {
	_, err := ParseCDR([]byte("esto no es un zip"))
	require.Error(t, err)
}

func TestOutcomeFromCDR(t *testing.T) {
	zip := []byte("PK-cdr")

	casos := []struct {
		nombre string
		code   string
		want   domsunat.OutcomeKind
	}{
		{"aceptado", "0", domsunat.OutcomeAccepted},
		{"observacion cuenta como aceptado", "4050", domsunat.OutcomeAccepted},
		{"rechazo", "2335", domsunat.OutcomeRejected},
		{"rechazo limite inferior", "2000", domsunat.OutcomeRejected},
		{"codigo no numerico", "ERR", domsunat.OutcomeRejected},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			outcome := OutcomeFromCDR(&CDR{ResponseCode: c.code, Description: "x"}, zip)
			assert.Equal(t, c.want, outcome.Kind)
			if c.want == domsunat.OutcomeAccepted {
				assert.Equal(t, zip, outcome.CDR, "la aceptación conserva el ZIP del CDR")
			}
		})
	}
}

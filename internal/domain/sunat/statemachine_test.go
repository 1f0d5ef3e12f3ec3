package sunat_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/sunat"
)

func draftDoc() *entity.Document {
	return &entity.Document{
		ID:      "doc-1",
		DocType: "01",
		Series:  "F001",
		Number:  "00000042",
		Status:  entity.DocStatusDraft,
	}
}

// TestTransition_FirmaExitosa: DRAFT + firma -> SIGNED con xml, hash y zip.
func TestTransition_FirmaExitosa(t *testing.T) {
	doc := draftDoc()

	ch, err := sunat.Transition(doc, sunat.Input{Sign: &sunat.SignResult{
		XMLSigned:     "<Invoice/>",
		Hash:          "aG9sYQ==",
		ZipSentBase64: "UEsDBA==",
	}})
	require.NoError(t, err)

	sunat.Apply(doc, ch)
	assert.Equal(t, entity.DocStatusSigned, doc.Status)
	assert.Equal(t, "<Invoice/>", doc.XMLSigned)
	assert.Equal(t, "aG9sYQ==", doc.Hash)
	assert.Equal(t, "UEsDBA==", doc.ZipSentBase64)
	assert.Equal(t, "F001-00000042", doc.FullNumber(), "serie-correlativo no debe cambiar")
}

// TestTransition_AceptacionInmediata: SIGNED + ACCEPTED(0) -> ACCEPTED con CDR.
func TestTransition_AceptacionInmediata(t *testing.T) {
	doc := draftDoc()
	doc.Status = entity.DocStatusSigned

	cdr := []byte("PK-cdr-falso")
	ch, err := sunat.Transition(doc, sunat.Input{
		Outcome: sunat.Accepted("0", "La Factura numero F001-00000042, ha sido aceptada", cdr),
	})
	require.NoError(t, err)

	sunat.Apply(doc, ch)
	assert.Equal(t, entity.DocStatusAccepted, doc.Status)
	assert.Equal(t, "0", doc.SunatCode)
	assert.Contains(t, doc.SunatMessage, "aceptada")
	assert.Equal(t, base64.StdEncoding.EncodeToString(cdr), doc.CDRZip)
}

// TestTransition_EnvioDiferido: SIGNED + PENDING(ticket) -> SENT con ticket.
func TestTransition_EnvioDiferido(t *testing.T) {
	doc := draftDoc()
	doc.Status = entity.DocStatusSigned

	ch, err := sunat.Transition(doc, sunat.Input{Outcome: sunat.Pending("1608535364123")})
	require.NoError(t, err)

	sunat.Apply(doc, ch)
	assert.Equal(t, entity.DocStatusSent, doc.Status)
	assert.Equal(t, "1608535364123", doc.SunatTicket)
	assert.Empty(t, doc.SunatCode, "un envío diferido aún no tiene código SUNAT")
}

// TestTransition_RechazoEnConsulta: SENT + REJECTED(2335) -> ERROR, sin reintento.
func TestTransition_RechazoEnConsulta(t *testing.T) {
	doc := draftDoc()
	doc.Status = entity.DocStatusSent
	doc.SunatTicket = "1608535364123"

	ch, err := sunat.Transition(doc, sunat.Input{
		Outcome: sunat.Rejected("2335", "El documento electrónico ingresado ha sido alterado - RUC no válido"),
	})
	require.NoError(t, err)

	sunat.Apply(doc, ch)
	assert.Equal(t, entity.DocStatusError, doc.Status)
	assert.Equal(t, "2335", doc.SunatCode)
	assert.Contains(t, doc.SunatMessage, "RUC no válido")
}

// TestTransition_TicketEnProceso: SENT + PENDING -> sigue SENT, sin cambios de campos.
func TestTransition_TicketEnProceso(t *testing.T) {
	doc := draftDoc()
	doc.Status = entity.DocStatusSent
	doc.SunatTicket = "1608535364123"

	ch, err := sunat.Transition(doc, sunat.Input{Outcome: sunat.Pending("1608535364123")})
	require.NoError(t, err)

	sunat.Apply(doc, ch)
	assert.Equal(t, entity.DocStatusSent, doc.Status)
	assert.Equal(t, "1608535364123", doc.SunatTicket)
}

// TestTransition_TerminalInmutable: sobre ACCEPTED/ERROR cualquier input es inválido;
// el CDR y el código SUNAT de un aceptado nunca cambian por acción del worker.
func TestTransition_TerminalInmutable(t *testing.T) {
	for _, status := range []string{entity.DocStatusAccepted, entity.DocStatusError} {
		doc := draftDoc()
		doc.Status = status
		doc.SunatCode = "0"
		doc.CDRZip = "UEsDBA=="

		_, err := sunat.Transition(doc, sunat.Input{Outcome: sunat.Accepted("0", "de nuevo", nil)})
		require.ErrorIs(t, err, domain.ErrInvalidTransition, "estado %s debe ser terminal", status)
		assert.Equal(t, "0", doc.SunatCode, "Transition nunca muta el documento")
		assert.Equal(t, "UEsDBA==", doc.CDRZip)
	}
}

// TestTransition_InputsIncoherentes: exactamente uno de firma/outcome.
func TestTransition_InputsIncoherentes(t *testing.T) {
	doc := draftDoc()

	_, err := sunat.Transition(doc, sunat.Input{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = sunat.Transition(doc, sunat.Input{
		Sign:    &sunat.SignResult{},
		Outcome: sunat.Pending("t"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Un DRAFT no puede recibir outcome del WS sin haberse firmado.
	_, err = sunat.Transition(doc, sunat.Input{Outcome: sunat.Accepted("0", "ok", nil)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Un SIGNED no puede volver a firmarse sin reset.
	doc.Status = entity.DocStatusSigned
	_, err = sunat.Transition(doc, sunat.Input{Sign: &sunat.SignResult{}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// TestReset_LimpiaDerivados: reset administrativo ERROR -> DRAFT con todos los
// campos derivados en blanco, listo para re-firmar. Serie y correlativo quedan.
func TestReset_LimpiaDerivados(t *testing.T) {
	doc := draftDoc()
	doc.Status = entity.DocStatusError
	doc.XMLSigned = "<Invoice/>"
	doc.Hash = "aG9sYQ=="
	doc.ZipSentBase64 = "UEsDBA=="
	doc.SunatCode = "2335"
	doc.SunatMessage = "RUC no válido"
	doc.SunatTicket = "123"
	doc.CDRZip = "UEsDBA=="

	sunat.Apply(doc, sunat.Reset())

	assert.Equal(t, entity.DocStatusDraft, doc.Status)
	assert.Empty(t, doc.XMLSigned)
	assert.Empty(t, doc.Hash)
	assert.Empty(t, doc.ZipSentBase64)
	assert.Empty(t, doc.SunatCode)
	assert.Empty(t, doc.SunatMessage)
	assert.Empty(t, doc.SunatTicket)
	assert.Empty(t, doc.CDRZip)
	assert.Equal(t, "F001", doc.Series)
	assert.Equal(t, "00000042", doc.Number)
}

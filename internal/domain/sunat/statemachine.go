package sunat

import (
	"encoding/base64"
	"fmt"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
)

// SignResult salida del firmador: el XML firmado, su DigestValue y el ZIP
// exacto que se transmitirá (Base64).
type SignResult struct {
	XMLSigned     string
	Hash          string
	ZipSentBase64 string
}

// Input es el hecho observado en un intento del worker: o bien se firmó el
// documento, o bien el WS SUNAT respondió. Exactamente uno debe estar presente.
type Input struct {
	Sign    *SignResult
	Outcome *Outcome
}

// Changes es el conjunto de campos a aplicar sobre el documento como resultado
// de una transición. Los punteros nil significan "no tocar"; un puntero a
// cadena vacía significa "limpiar".
type Changes struct {
	Status        string
	XMLSigned     *string
	Hash          *string
	ZipSentBase64 *string
	SunatCode     *string
	SunatMessage  *string
	SunatTicket   *string
	CDRZip        *string
}

// Transition es la función pura (estado actual, hecho) -> cambios.
// No muta el documento; el llamador aplica los cambios con Apply y los
// persiste junto con el job en una misma transacción.
//
//	DRAFT  --sign ok-->            SIGNED
//	SIGNED --submit ACCEPTED-->    ACCEPTED
//	SIGNED --submit PENDING-->     SENT
//	SIGNED --submit REJECTED-->    ERROR
//	SENT   --poll ACCEPTED-->      ACCEPTED
//	SENT   --poll REJECTED-->      ERROR
//	SENT   --poll PENDING-->       SENT (sin cambios; se consulta de nuevo)
//
// ACCEPTED y ERROR son terminales: cualquier Input sobre ellos es
// ErrInvalidTransition. La única salida de un terminal es Reset (administrativo).
func Transition(doc *entity.Document, in Input) (Changes, error) {
	if (in.Sign == nil) == (in.Outcome == nil) {
		return Changes{}, fmt.Errorf("%w: el input debe traer exactamente firma u outcome", domain.ErrInvalidTransition)
	}

	switch doc.Status {
	case entity.DocStatusDraft:
		if in.Sign == nil {
			return Changes{}, fmt.Errorf("%w: un DRAFT solo puede firmarse, llegó outcome %s",
				domain.ErrInvalidTransition, in.Outcome.Kind)
		}
		return Changes{
			Status:        entity.DocStatusSigned,
			XMLSigned:     ptr(in.Sign.XMLSigned),
			Hash:          ptr(in.Sign.Hash),
			ZipSentBase64: ptr(in.Sign.ZipSentBase64),
		}, nil

	case entity.DocStatusSigned:
		if in.Outcome == nil {
			return Changes{}, fmt.Errorf("%w: documento ya firmado", domain.ErrInvalidTransition)
		}
		return fromSubmission(doc, in.Outcome)

	case entity.DocStatusSent:
		if in.Outcome == nil {
			return Changes{}, fmt.Errorf("%w: documento ya enviado", domain.ErrInvalidTransition)
		}
		return fromSubmission(doc, in.Outcome)

	case entity.DocStatusAccepted, entity.DocStatusError:
		return Changes{}, fmt.Errorf("%w: el documento %s está en estado terminal %s",
			domain.ErrInvalidTransition, doc.FullNumber(), doc.Status)

	default:
		return Changes{}, fmt.Errorf("%w: estado desconocido %q", domain.ErrInvalidTransition, doc.Status)
	}
}

// fromSubmission mapea el outcome del WS a la transición correspondiente.
// Match exhaustivo sobre el tipo cerrado Outcome.
func fromSubmission(doc *entity.Document, out *Outcome) (Changes, error) {
	switch out.Kind {
	case OutcomeAccepted:
		ch := Changes{
			Status:       entity.DocStatusAccepted,
			SunatCode:    ptr(out.Code),
			SunatMessage: ptr(out.Message),
		}
		if len(out.CDR) > 0 {
			ch.CDRZip = ptr(encodeBase64(out.CDR))
		}
		return ch, nil

	case OutcomeRejected:
		return Changes{
			Status:       entity.DocStatusError,
			SunatCode:    ptr(out.Code),
			SunatMessage: ptr(out.Message),
		}, nil

	case OutcomePending:
		if doc.Status == entity.DocStatusSent {
			// Ticket todavía en proceso: sin cambios, se consultará de nuevo.
			return Changes{Status: entity.DocStatusSent}, nil
		}
		return Changes{
			Status:      entity.DocStatusSent,
			SunatTicket: ptr(out.Ticket),
		}, nil

	default:
		return Changes{}, fmt.Errorf("%w: outcome desconocido %d", domain.ErrInvalidTransition, int(out.Kind))
	}
}

// Reset produce los cambios del reinicio administrativo: cualquier estado
// vuelve a DRAFT y todos los campos derivados se limpian. Serie y correlativo
// no se tocan (el comprobante conserva su numeración al re-firmarse).
func Reset() Changes {
	empty := ""
	return Changes{
		Status:        entity.DocStatusDraft,
		XMLSigned:     &empty,
		Hash:          &empty,
		ZipSentBase64: &empty,
		SunatCode:     &empty,
		SunatMessage:  &empty,
		SunatTicket:   &empty,
		CDRZip:        &empty,
	}
}

// Apply copia los cambios sobre el documento. No persiste.
func Apply(doc *entity.Document, ch Changes) {
	if ch.Status != "" {
		doc.Status = ch.Status
	}
	if ch.XMLSigned != nil {
		doc.XMLSigned = *ch.XMLSigned
	}
	if ch.Hash != nil {
		doc.Hash = *ch.Hash
	}
	if ch.ZipSentBase64 != nil {
		doc.ZipSentBase64 = *ch.ZipSentBase64
	}
	if ch.SunatCode != nil {
		doc.SunatCode = *ch.SunatCode
	}
	if ch.SunatMessage != nil {
		doc.SunatMessage = *ch.SunatMessage
	}
	if ch.SunatTicket != nil {
		doc.SunatTicket = *ch.SunatTicket
	}
	if ch.CDRZip != nil {
		doc.CDRZip = *ch.CDRZip
	}
}

func ptr(s string) *string { return &s }

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

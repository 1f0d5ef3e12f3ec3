// Package sunat contiene la lógica pura del pipeline de facturación electrónica:
// el resultado tipado del WS SUNAT, la máquina de estados del documento y las
// validaciones estructurales del borrador. No depende de red ni de persistencia.
package sunat

import "fmt"

// OutcomeKind discrimina las tres formas de respuesta del WS SUNAT.
// El tipo es cerrado: la máquina de estados hace match exhaustivo sobre él.
type OutcomeKind int

const (
	// OutcomeAccepted comprobante aceptado (CDR con código 0 u observaciones >= 4000).
	OutcomeAccepted OutcomeKind = iota + 1
	// OutcomeRejected rechazo de negocio (códigos 2000-3999). Permanente: no se reintenta.
	OutcomeRejected
	// OutcomePending envío diferido: SUNAT devolvió un ticket a consultar después.
	OutcomePending
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomePending:
		return "PENDING"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome normaliza las dos formas de respuesta del WS (inmediata con CDR,
// diferida con ticket) en un único resultado tipado.
type Outcome struct {
	Kind    OutcomeKind
	Code    string // ResponseCode del CDR o código de fault (vacío en PENDING)
	Message string // Descripción devuelta por SUNAT
	Ticket  string // Solo en PENDING
	CDR     []byte // ZIP de la constancia de recepción (solo en ACCEPTED, y en REJECTED vía getStatus)
}

// Accepted construye un resultado de aceptación con su CDR.
func Accepted(code, message string, cdr []byte) *Outcome {
	return &Outcome{Kind: OutcomeAccepted, Code: code, Message: message, CDR: cdr}
}

// Rejected construye un rechazo permanente de SUNAT.
func Rejected(code, message string) *Outcome {
	return &Outcome{Kind: OutcomeRejected, Code: code, Message: message}
}

// Pending construye un resultado diferido con el ticket a consultar.
func Pending(ticket string) *Outcome {
	return &Outcome{Kind: OutcomePending, Ticket: ticket}
}

// TransientError marca una falla recuperable (timeout, 5xx, excepción del
// sistema SUNAT 0100-1999). El scheduler reintenta con backoff; cualquier otro
// error se trata como permanente. Esta clasificación es el contrato más
// importante del pipeline: decide qué se reintenta y qué no.
type TransientError struct {
	Op  string // operación que falló: sendBill, getStatus, ...
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("sunat: falla transitoria en %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransient envuelve err como falla transitoria de la operación op.
func NewTransient(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrValidation        = errors.New("comprobante inválido")
	ErrSigning           = errors.New("error de firma digital")
	ErrInvalidTransition = errors.New("transición de estado inválida")
	ErrJobInFlight       = errors.New("el documento ya tiene un job pendiente")
)

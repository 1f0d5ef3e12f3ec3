package repository

import "context"

// SequenceRepository asigna correlativos por emisor+tipo+serie con un
// incremento atómico (increment-and-read). El contador es estado compartido
// entre procesos; la atomicidad la garantiza el store, no el llamador.
type SequenceRepository interface {
	// Next devuelve el siguiente correlativo de la serie, con formato de 8
	// dígitos con ceros a la izquierda (ej. "00000124").
	Next(ctx context.Context, companyID, docType, series string) (string, error)
}

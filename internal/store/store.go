// Package store define los contratos de persistencia del dispatcher:
// el contador diario de quota y el log durable de envíos.
//
// Implementaciones: fs (archivos JSON con escritura atómica) y pg (pgxpool).
// Toda mutación persiste el estado completo de forma sincrónica antes de
// retornar; un crash pierde a lo sumo el intento en vuelo.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que el registro buscado no existe.
var ErrNotFound = errors.New("store: not found")

// QuotaRecord es el contador diario. Count nunca decrece dentro de un mismo
// Date; al cambiar el día se reemplaza por {hoy, 0}.
type QuotaRecord struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// DeliveryRecord es la entrada de auditoría de un envío y su estado de apertura.
type DeliveryRecord struct {
	To         string     `json:"to"`
	Subject    string     `json:"subject"`
	SentAt     time.Time  `json:"sent_at"`
	TrackingID string     `json:"tracking_id"`
	Opened     bool       `json:"opened"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
}

// QuotaStore mantiene el contador diario de envíos exitosos.
type QuotaStore interface {
	// CheckAndReset reemplaza el registro por {today, 0} si la fecha guardada
	// difiere de today. Idempotente dentro del mismo día.
	CheckAndReset(ctx context.Context, today string) (QuotaRecord, error)

	// Current retorna el registro vigente sin mutarlo.
	Current(ctx context.Context) (QuotaRecord, error)

	// Increment suma 1 y persiste el registro completo antes de retornar.
	// Un fallo acá es fatal para el intento en curso: propagar, nunca
	// sub-contar en silencio.
	Increment(ctx context.Context) (QuotaRecord, error)
}

// DeliveryLog es la colección ordenada y durable de registros de envío.
type DeliveryLog interface {
	// Append agrega al final y persiste sincrónicamente.
	Append(ctx context.Context, rec DeliveryRecord) error

	// List retorna una copia de todos los registros en orden de inserción.
	List(ctx context.Context) ([]DeliveryRecord, error)

	// FindByTrackingID retorna el primer registro con ese id,
	// o ErrNotFound si no existe.
	FindByTrackingID(ctx context.Context, id string) (DeliveryRecord, error)

	// MarkOpened marca opened=true y opened_at=at la PRIMERA vez que se
	// resuelve el id; llamadas posteriores son no-op. Retorna true si esta
	// llamada efectivamente marcó el registro, false si ya estaba abierto.
	// ErrNotFound si el id no existe.
	MarkOpened(ctx context.Context, id string, at time.Time) (bool, error)
}

// Stores agrupa los dos stores durables más el cierre del backend.
type Stores struct {
	Quota QuotaStore
	Log   DeliveryLog
	Close func() error
}

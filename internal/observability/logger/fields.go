package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar del dominio. Mantienen nombres consistentes entre
// dispatch, tracking y handlers.

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// To crea un campo para el destinatario.
func To(v string) zap.Field { return zap.String("to", v) }

// Subject crea un campo para el asunto del envío.
func Subject(v string) zap.Field { return zap.String("subject", v) }

// TrackingID crea un campo para el id de tracking.
func TrackingID(v string) zap.Field { return zap.String("tracking_id", v) }

// RequestID crea un campo para el ID del request HTTP.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// Package dispatch implementa el motor de envío masivo: el loop secuencial
// con pacing, la máquina de estados de quota diaria y el reporte por
// destinatario.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dropDatabas3/buzonero/internal/mailer"
	"github.com/dropDatabas3/buzonero/internal/observability/logger"
	"github.com/dropDatabas3/buzonero/internal/store"
	"github.com/dropDatabas3/buzonero/internal/tracking"
)

// ErrInvalidInput se retorna antes de tocar ningún destinatario.
var ErrInvalidInput = errors.New("dispatch: subject and body are required")

// quotaReachedMsg es el texto registrado en el reporte cuando el techo diario
// bloquea un destinatario.
const quotaReachedMsg = "daily limit reached"

// Request es una invocación completa de envío masivo.
type Request struct {
	Recipients  []string
	Subject     string
	HTML        string
	FromName    string
	Attachments []mailer.Attachment
}

// Failure es un destinatario fallido con su motivo.
type Failure struct {
	To    string `json:"to"`
	Error string `json:"error"`
}

// Report acumula el resultado por destinatario de una invocación.
// Transitorio: se construye, se retorna y se descarta.
type Report struct {
	Success []string  `json:"success"`
	Failed  []Failure `json:"failed"`
	Total   int       `json:"total"`
}

// MetricsRecorder recibe los eventos del loop. Implementación en internal/http
// (Prometheus); nil deshabilita.
type MetricsRecorder interface {
	EmailSent()
	EmailFailed(reason string)
	EmailOpened()
	QuotaUsed(count int)
	QuotaWarning()
}

// Config arma un Engine.
type Config struct {
	Relay   mailer.Sender
	Quota   store.QuotaStore
	Log     store.DeliveryLog
	Tracker *tracking.Correlator

	// FromAddr es la dirección configurada del remitente; el display name
	// viene en cada Request.
	FromAddr string

	DailyLimit       int
	WarningThreshold int
	Pace             time.Duration

	Metrics MetricsRecorder
}

// Engine orquesta quota, tracking, relay y sent log.
// Un solo worker lógico: las invocaciones concurrentes de Dispatch se
// serializan, nunca se entregan en paralelo.
type Engine struct {
	cfg Config
	sem *semaphore.Weighted
	now func() time.Time
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		sem: semaphore.NewWeighted(1),
		now: time.Now,
	}
}

// Dispatch procesa la lista completa de destinatarios, en orden y de a uno.
//
// Aislamiento por destinatario: un fallo del relay o el techo de quota
// registran el fallo y el loop sigue. Un fallo de PERSISTENCIA (quota o
// sent log) aborta los destinatarios restantes: se retorna el reporte
// parcial acumulado junto con el error, para no descartar envíos reales.
func (e *Engine) Dispatch(ctx context.Context, req Request) (Report, error) {
	report := Report{Success: []string{}, Failed: []Failure{}}

	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.HTML) == "" {
		return report, ErrInvalidInput
	}

	// Un dispatch a la vez; los demás esperan acá.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return report, err
	}
	defer e.sem.Release(1)

	log := logger.Named("dispatch")

	today := e.now().Format("2006-01-02")
	rec, err := e.cfg.Quota.CheckAndReset(ctx, today)
	if err != nil {
		return report, fmt.Errorf("dispatch: quota reset: %w", err)
	}
	count := rec.Count
	warned := false

	for _, raw := range req.Recipients {
		to := strings.TrimSpace(raw)
		if to == "" {
			// línea en blanco: ni éxito ni fallo, tampoco cuenta en total
			continue
		}

		if count >= e.cfg.DailyLimit {
			report.Failed = append(report.Failed, Failure{To: to, Error: quotaReachedMsg})
			e.metricFailed("quota")
			continue
		}

		if count >= e.cfg.WarningThreshold && !warned {
			log.Warn("umbral de advertencia de quota cruzado",
				logger.Count(count),
				logger.Int("threshold", e.cfg.WarningThreshold),
				logger.Int("daily_limit", e.cfg.DailyLimit),
			)
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.QuotaWarning()
			}
			warned = true
		}

		id := e.cfg.Tracker.NewID()
		msg := mailer.Message{
			From:        formatFrom(req.FromName, e.cfg.FromAddr),
			To:          to,
			Subject:     req.Subject,
			HTML:        e.cfg.Tracker.Embed(req.HTML, id),
			Text:        tracking.StripTags(req.HTML),
			Attachments: req.Attachments,
		}

		if sendErr := e.cfg.Relay.Send(ctx, msg); sendErr != nil {
			// fallo aislado: el loop continúa con el próximo destinatario
			report.Failed = append(report.Failed, Failure{To: to, Error: sendErr.Error()})
			e.metricFailed("relay")
			log.Info("envío fallido", logger.To(to), logger.Err(sendErr))
		} else {
			report.Success = append(report.Success, to)
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.EmailSent()
			}

			qrec, err := e.cfg.Quota.Increment(ctx)
			if err != nil {
				report.Total = len(report.Success) + len(report.Failed)
				return report, fmt.Errorf("dispatch: quota increment: %w", err)
			}
			count = qrec.Count
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.QuotaUsed(count)
			}

			if err := e.cfg.Log.Append(ctx, store.DeliveryRecord{
				To:         to,
				Subject:    req.Subject,
				SentAt:     e.now().UTC(),
				TrackingID: id,
			}); err != nil {
				report.Total = len(report.Success) + len(report.Failed)
				return report, fmt.Errorf("dispatch: sent log append: %w", err)
			}
			log.Info("enviado", logger.To(to), logger.TrackingID(id), logger.Count(count))
		}

		// pacing fijo entre destinatarios; el delay final es inocuo
		if e.cfg.Pace > 0 {
			time.Sleep(e.cfg.Pace)
		}
	}

	report.Total = len(report.Success) + len(report.Failed)
	return report, nil
}

func (e *Engine) metricFailed(reason string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EmailFailed(reason)
	}
}

func formatFrom(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

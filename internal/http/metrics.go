package http

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	// Métricas de negocio: envíos, aperturas y cupo diario.
	emailsSentTotal    prometheus.Counter
	emailsFailedTotal  *prometheus.CounterVec
	emailsOpenedTotal  prometheus.Counter
	sendQuotaUsed      prometheus.Gauge
	quotaWarningsTotal prometheus.Counter
)

// RegisterMetrics inicializa las métricas HTTP y de dominio en el registry
// indicado (nil = DefaultRegisterer). Devuelve el handler para /metrics.
func RegisterMetrics(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		emailsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Correos entregados al relay SMTP",
		})

		emailsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Correos no enviados, por motivo",
		}, []string{"reason"}) // reason: relay|quota

		emailsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emails_opened_total",
			Help: "Primeras aperturas detectadas vía pixel",
		})

		sendQuotaUsed = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "send_quota_used",
			Help: "Envíos consumidos del cupo diario",
		})

		quotaWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_warnings_total",
			Help: "Avisos emitidos al acercarse al cupo diario",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			emailsSentTotal, emailsFailedTotal, emailsOpenedTotal,
			sendQuotaUsed, quotaWarningsTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}

	// Usamos el gatherer global por compatibilidad, ya que las métricas se registran allí.
	return promhttp.Handler(), nil
}

// WithMetrics instrumenta requests HTTP con métricas Prometheus (contadores, latencia, inflight).
func WithMetrics(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			duration := time.Since(start).Seconds()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(duration)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// registerCollector registra el collector en el registry indicado, ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Recorder expone las métricas de dominio al motor de despacho sin que
// éste dependa de prometheus.
type Recorder struct{}

func (Recorder) EmailSent() {
	if emailsSentTotal != nil {
		emailsSentTotal.Inc()
	}
}

func (Recorder) EmailFailed(reason string) {
	if emailsFailedTotal != nil {
		emailsFailedTotal.WithLabelValues(reason).Inc()
	}
}

func (Recorder) EmailOpened() {
	if emailsOpenedTotal != nil {
		emailsOpenedTotal.Inc()
	}
}

func (Recorder) QuotaUsed(count int) {
	if sendQuotaUsed != nil {
		sendQuotaUsed.Set(float64(count))
	}
}

func (Recorder) QuotaWarning() {
	if quotaWarningsTotal != nil {
		quotaWarningsTotal.Inc()
	}
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}

	segments := strings.Split(clean, "/")
	var out []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) {
		return true
	}
	if hexSegmentRE.MatchString(seg) {
		return true
	}
	if tokenSegmentRE.MatchString(seg) {
		return true
	}
	if _, err := strconv.Atoi(seg); err == nil {
		return true
	}
	return false
}

package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/buzonero/internal/mailer"
	"github.com/dropDatabas3/buzonero/internal/store"
	fsstore "github.com/dropDatabas3/buzonero/internal/store/fs"
	"github.com/dropDatabas3/buzonero/internal/tracking"
)

// fakeRelay registra los mensajes entregados y puede fallar por destinatario.
type fakeRelay struct {
	sent   []mailer.Message
	failOn map[string]error
}

func (f *fakeRelay) Send(_ context.Context, msg mailer.Message) error {
	if err := f.failOn[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeMetrics struct {
	sent     int
	opened   int
	warnings int
	quota    int
	failed   map[string]int
}

func newFakeMetrics() *fakeMetrics          { return &fakeMetrics{failed: map[string]int{}} }
func (m *fakeMetrics) EmailSent()           { m.sent++ }
func (m *fakeMetrics) EmailOpened()         { m.opened++ }
func (m *fakeMetrics) QuotaWarning()        { m.warnings++ }
func (m *fakeMetrics) QuotaUsed(count int)  { m.quota = count }
func (m *fakeMetrics) EmailFailed(r string) { m.failed[r]++ }

type testEnv struct {
	engine  *Engine
	relay   *fakeRelay
	stores  *store.Stores
	metrics *fakeMetrics
}

func newTestEnv(t *testing.T, mut func(*Config)) *testEnv {
	t.Helper()

	stores, err := fsstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("fs open: %v", err)
	}
	relay := &fakeRelay{failOn: map[string]error{}}
	metrics := newFakeMetrics()

	cfg := Config{
		Relay:            relay,
		Quota:            stores.Quota,
		Log:              stores.Log,
		Tracker:          &tracking.Correlator{BaseURL: "http://localhost:8080", Log: stores.Log},
		FromAddr:         "bot@example.com",
		DailyLimit:       300,
		WarningThreshold: 200,
		Pace:             0, // sin espera en tests
		Metrics:          metrics,
	}
	if mut != nil {
		mut(&cfg)
	}
	return &testEnv{engine: New(cfg), relay: relay, stores: stores, metrics: metrics}
}

func TestDispatch_AllDelivered(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rep, err := env.engine.Dispatch(ctx, Request{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com"},
		Subject:    "hola",
		HTML:       "<p>contenido</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rep.Success) != 3 || len(rep.Failed) != 0 || rep.Total != 3 {
		t.Fatalf("reporte inesperado: %+v", rep)
	}

	// cada mensaje lleva pixel propio y versión texto sin tags
	if len(env.relay.sent) != 3 {
		t.Fatalf("relay recibió %d mensajes", len(env.relay.sent))
	}
	seen := map[string]bool{}
	for _, msg := range env.relay.sent {
		if !strings.Contains(msg.HTML, "http://localhost:8080/track/") {
			t.Fatalf("HTML sin pixel: %q", msg.HTML)
		}
		if msg.Text != "contenido" {
			t.Fatalf("texto plano inesperado: %q", msg.Text)
		}
		if seen[msg.HTML] {
			t.Fatal("dos mensajes comparten tracking id")
		}
		seen[msg.HTML] = true
	}

	recs, err := env.stores.Log.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("sent log con %d registros", len(recs))
	}
	q, _ := env.stores.Quota.Current(ctx)
	if q.Count != 3 {
		t.Fatalf("quota count = %d", q.Count)
	}
	if env.metrics.sent != 3 || env.metrics.quota != 3 {
		t.Fatalf("métricas: %+v", env.metrics)
	}
}

func TestDispatch_BlankRecipientsSkipped(t *testing.T) {
	env := newTestEnv(t, nil)

	rep, err := env.engine.Dispatch(context.Background(), Request{
		Recipients: []string{"a@x.com", "", "   ", "b@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// los blancos no son éxito ni fallo, y no cuentan en el total
	if rep.Total != 2 || len(rep.Success) != 2 {
		t.Fatalf("reporte inesperado: %+v", rep)
	}
}

func TestDispatch_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, req := range []Request{
		{Recipients: []string{"a@x.com"}, Subject: "", HTML: "<p>x</p>"},
		{Recipients: []string{"a@x.com"}, Subject: "hola", HTML: "   "},
	} {
		_, err := env.engine.Dispatch(context.Background(), req)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("esperaba ErrInvalidInput, got %v", err)
		}
	}
	if len(env.relay.sent) != 0 {
		t.Fatal("no debería haber tocado el relay")
	}
}

func TestDispatch_QuotaExhausted(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.DailyLimit = 2
		c.WarningThreshold = 2
	})

	rep, err := env.engine.Dispatch(context.Background(), Request{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rep.Success) != 2 || len(rep.Failed) != 2 || rep.Total != 4 {
		t.Fatalf("reporte inesperado: %+v", rep)
	}
	for _, f := range rep.Failed {
		if f.Error != quotaReachedMsg {
			t.Fatalf("motivo inesperado: %q", f.Error)
		}
	}
	// los bloqueados por quota nunca llegan al relay
	if len(env.relay.sent) != 2 {
		t.Fatalf("relay recibió %d mensajes", len(env.relay.sent))
	}
	if env.metrics.failed["quota"] != 2 {
		t.Fatalf("métricas: %+v", env.metrics.failed)
	}
}

func TestDispatch_WarningFiresOnce(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.DailyLimit = 10
		c.WarningThreshold = 1
	})

	_, err := env.engine.Dispatch(context.Background(), Request{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.metrics.warnings != 1 {
		t.Fatalf("advertencias = %d, esperaba 1", env.metrics.warnings)
	}
}

func TestDispatch_RelayFailureIsolated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.relay.failOn["b@x.com"] = errors.New("conexión rechazada")

	ctx := context.Background()
	rep, err := env.engine.Dispatch(ctx, Request{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rep.Success) != 2 || len(rep.Failed) != 1 || rep.Total != 3 {
		t.Fatalf("reporte inesperado: %+v", rep)
	}
	if rep.Failed[0].To != "b@x.com" || !strings.Contains(rep.Failed[0].Error, "conexión rechazada") {
		t.Fatalf("fallo inesperado: %+v", rep.Failed[0])
	}

	// el fallo no consume quota ni entra al sent log
	q, _ := env.stores.Quota.Current(ctx)
	if q.Count != 2 {
		t.Fatalf("quota count = %d", q.Count)
	}
	recs, _ := env.stores.Log.List(ctx)
	if len(recs) != 2 {
		t.Fatalf("sent log con %d registros", len(recs))
	}
}

func TestDispatch_DayRolloverResetsQuota(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.DailyLimit = 1 })
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.engine.now = func() time.Time { return day1 }

	rep, err := env.engine.Dispatch(ctx, Request{
		Recipients: []string{"a@x.com", "b@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rep.Success) != 1 || len(rep.Failed) != 1 {
		t.Fatalf("día 1: %+v", rep)
	}

	// al día siguiente el contador arranca de cero
	env.engine.now = func() time.Time { return day1.Add(24 * time.Hour) }
	rep, err = env.engine.Dispatch(ctx, Request{
		Recipients: []string{"c@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rep.Success) != 1 || len(rep.Failed) != 0 {
		t.Fatalf("día 2: %+v", rep)
	}
	q, _ := env.stores.Quota.Current(ctx)
	if q.Date != "2026-03-02" || q.Count != 1 {
		t.Fatalf("quota tras rollover: %+v", q)
	}
}

// failingQuota envuelve un QuotaStore real y fuerza el error en Increment.
type failingQuota struct {
	store.QuotaStore
	incErr error
}

func (f *failingQuota) Increment(ctx context.Context) (store.QuotaRecord, error) {
	if f.incErr != nil {
		return store.QuotaRecord{}, f.incErr
	}
	return f.QuotaStore.Increment(ctx)
}

func TestDispatch_PersistenceFailureAbortsBatch(t *testing.T) {
	boom := errors.New("disco lleno")
	env := newTestEnv(t, nil)
	env.engine.cfg.Quota = &failingQuota{QuotaStore: env.stores.Quota, incErr: boom}

	rep, err := env.engine.Dispatch(context.Background(), Request{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com"},
		Subject:    "hola",
		HTML:       "<p>x</p>",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("esperaba error de persistencia, got %v", err)
	}
	// el primer envío real ya ocurrió: el reporte parcial lo refleja
	if len(rep.Success) != 1 || rep.Total != 1 {
		t.Fatalf("reporte parcial inesperado: %+v", rep)
	}
	// los destinatarios restantes no se intentaron
	if len(env.relay.sent) != 1 {
		t.Fatalf("relay recibió %d mensajes", len(env.relay.sent))
	}
}

func TestDispatch_ConcurrentCallsSerialized(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	done := make(chan Report, 2)
	for i := 0; i < 2; i++ {
		go func() {
			rep, err := env.engine.Dispatch(ctx, Request{
				Recipients: []string{"a@x.com", "b@x.com"},
				Subject:    "hola",
				HTML:       "<p>x</p>",
			})
			if err != nil {
				t.Errorf("dispatch: %v", err)
			}
			done <- rep
		}()
	}
	<-done
	<-done

	// con serialización estricta el contador queda exacto
	q, _ := env.stores.Quota.Current(ctx)
	if q.Count != 4 {
		t.Fatalf("quota count = %d, esperaba 4", q.Count)
	}
}

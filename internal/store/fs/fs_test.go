package fs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/buzonero/internal/store"
)

func TestQuotaStore_ResetAndPersist(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := NewQuotaStore(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	rec, err := s.CheckAndReset(ctx, "2026-03-01")
	if err != nil {
		t.Fatalf("check-and-reset: %v", err)
	}
	if rec.Date != "2026-03-01" || rec.Count != 0 {
		t.Fatalf("registro inesperado: %+v", rec)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Increment(ctx); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	// mismo día: el contador sobrevive
	rec, _ = s.CheckAndReset(ctx, "2026-03-01")
	if rec.Count != 3 {
		t.Fatalf("count = %d, esperaba 3", rec.Count)
	}

	// reabrir desde disco: el estado persiste
	s2, err := NewQuotaStore(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rec, _ = s2.Current(ctx)
	if rec.Date != "2026-03-01" || rec.Count != 3 {
		t.Fatalf("tras reabrir: %+v", rec)
	}

	// cambio de día: contador a cero
	rec, _ = s2.CheckAndReset(ctx, "2026-03-02")
	if rec.Date != "2026-03-02" || rec.Count != 0 {
		t.Fatalf("tras rollover: %+v", rec)
	}
}

func TestDeliveryLog_AppendListReload(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	l, err := NewDeliveryLog(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"id-1", "id-2"} {
		err := l.Append(ctx, store.DeliveryRecord{
			To:         id + "@x.com",
			Subject:    "hola",
			SentAt:     sentAt,
			TrackingID: id,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	l2, err := NewDeliveryLog(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, err := l2.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].TrackingID != "id-1" || recs[1].TrackingID != "id-2" {
		t.Fatalf("orden o contenido inesperado: %+v", recs)
	}

	rec, err := l2.FindByTrackingID(ctx, "id-2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.To != "id-2@x.com" || rec.Opened {
		t.Fatalf("registro inesperado: %+v", rec)
	}
}

func TestDeliveryLog_MarkOpenedIdempotent(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	l, err := NewDeliveryLog(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.Append(ctx, store.DeliveryRecord{
		To: "a@x.com", Subject: "hola", SentAt: time.Now().UTC(), TrackingID: "id-1",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	at := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	first, err := l.MarkOpened(ctx, "id-1", at)
	if err != nil || !first {
		t.Fatalf("primera apertura: first=%v err=%v", first, err)
	}

	// la segunda apertura no reescribe opened_at
	again, err := l.MarkOpened(ctx, "id-1", at.Add(time.Hour))
	if err != nil || again {
		t.Fatalf("segunda apertura: first=%v err=%v", again, err)
	}
	rec, _ := l.FindByTrackingID(ctx, "id-1")
	if !rec.Opened || rec.OpenedAt == nil || !rec.OpenedAt.Equal(at) {
		t.Fatalf("registro tras aperturas: %+v", rec)
	}

	// id desconocido
	if _, err := l.MarkOpened(ctx, "nope", at); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("esperaba ErrNotFound, got %v", err)
	}
	if _, err := l.FindByTrackingID(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("esperaba ErrNotFound, got %v", err)
	}
}

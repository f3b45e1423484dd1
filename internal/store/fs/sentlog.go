package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropDatabas3/buzonero/internal/store"
	"github.com/dropDatabas3/buzonero/internal/util/atomicwrite"
)

const sentLogFile = "sent_log.json"

// DeliveryLog implementa store.DeliveryLog sobre un archivo JSON.
// La colección vive en memoria y se persiste completa en cada mutación;
// el mutex serializa al escritor del dispatch con el lector/mutador de
// resolución de tracking.
type DeliveryLog struct {
	path string
	mu   sync.Mutex
	recs []store.DeliveryRecord
}

// NewDeliveryLog carga (o defaultea) el log desde root/sent_log.json.
func NewDeliveryLog(root string) (*DeliveryLog, error) {
	l := &DeliveryLog{path: filepath.Join(root, sentLogFile)}

	b, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &l.recs); err != nil {
			return nil, fmt.Errorf("sentlog: parse %s: %w", l.path, err)
		}
	case os.IsNotExist(err):
		// primer arranque: log vacío
	default:
		return nil, fmt.Errorf("sentlog: read %s: %w", l.path, err)
	}
	return l, nil
}

func (l *DeliveryLog) Append(ctx context.Context, rec store.DeliveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recs = append(l.recs, rec)
	if err := l.persistLocked(); err != nil {
		// revertir para que memoria y disco no diverjan
		l.recs = l.recs[:len(l.recs)-1]
		return err
	}
	return nil
}

func (l *DeliveryLog) List(ctx context.Context) ([]store.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]store.DeliveryRecord, len(l.recs))
	copy(out, l.recs)
	return out, nil
}

func (l *DeliveryLog) FindByTrackingID(ctx context.Context, id string) (store.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.recs {
		if l.recs[i].TrackingID == id {
			return l.recs[i], nil
		}
	}
	return store.DeliveryRecord{}, store.ErrNotFound
}

func (l *DeliveryLog) MarkOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.recs {
		if l.recs[i].TrackingID != id {
			continue
		}
		if l.recs[i].Opened {
			// idempotente: la primera resolución gana, OpenedAt no cambia
			return false, nil
		}
		l.recs[i].Opened = true
		t := at
		l.recs[i].OpenedAt = &t
		if err := l.persistLocked(); err != nil {
			l.recs[i].Opened = false
			l.recs[i].OpenedAt = nil
			return false, err
		}
		return true, nil
	}
	return false, store.ErrNotFound
}

func (l *DeliveryLog) persistLocked() error {
	b, err := json.MarshalIndent(l.recs, "", "  ")
	if err != nil {
		return fmt.Errorf("sentlog: marshal: %w", err)
	}
	if err := atomicwrite.WriteFile(l.path, b, 0644); err != nil {
		return fmt.Errorf("sentlog: persist: %w", err)
	}
	return nil
}

// Open arma los dos stores FS bajo el mismo directorio raíz.
func Open(root string) (*store.Stores, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("fs: mkdir %s: %w", root, err)
	}
	q, err := NewQuotaStore(root)
	if err != nil {
		return nil, err
	}
	l, err := NewDeliveryLog(root)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Quota: q,
		Log:   l,
		Close: func() error { return nil },
	}, nil
}

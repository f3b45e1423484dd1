// Package fs implementa los stores del dispatcher sobre archivos JSON.
// Cada mutación serializa el estado completo y lo escribe vía atomicwrite,
// igual que el resto del estado FS del servicio.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dropDatabas3/buzonero/internal/store"
	"github.com/dropDatabas3/buzonero/internal/util/atomicwrite"
)

const quotaFile = "quota.json"

// QuotaStore implementa store.QuotaStore sobre un archivo JSON.
// Single-writer: todas las mutaciones pasan por el mutex.
type QuotaStore struct {
	path string
	mu   sync.Mutex
	rec  store.QuotaRecord
}

// NewQuotaStore carga (o defaultea) el contador desde root/quota.json.
func NewQuotaStore(root string) (*QuotaStore, error) {
	s := &QuotaStore{path: filepath.Join(root, quotaFile)}

	b, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &s.rec); err != nil {
			return nil, fmt.Errorf("quota: parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		// primer arranque: {date:"", count:0}
	default:
		return nil, fmt.Errorf("quota: read %s: %w", s.path, err)
	}
	return s, nil
}

func (s *QuotaStore) CheckAndReset(ctx context.Context, today string) (store.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.Date == today {
		return s.rec, nil
	}
	s.rec = store.QuotaRecord{Date: today, Count: 0}
	if err := s.persistLocked(); err != nil {
		return store.QuotaRecord{}, err
	}
	return s.rec, nil
}

func (s *QuotaStore) Current(ctx context.Context) (store.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, nil
}

func (s *QuotaStore) Increment(ctx context.Context) (store.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Count++
	if err := s.persistLocked(); err != nil {
		// el contador en memoria queda adelantado: preferible sobre-contar
		// un techo de seguridad que sub-contarlo
		return store.QuotaRecord{}, err
	}
	return s.rec, nil
}

func (s *QuotaStore) persistLocked() error {
	b, err := json.Marshal(s.rec)
	if err != nil {
		return fmt.Errorf("quota: marshal: %w", err)
	}
	if err := atomicwrite.WriteFile(s.path, b, 0644); err != nil {
		return fmt.Errorf("quota: persist: %w", err)
	}
	return nil
}

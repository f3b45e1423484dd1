// Package notes guarda las plantillas reutilizables del editor externo.
// El core de envío no las lee; sólo las sirve para que la UI arme el body.
package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dropDatabas3/buzonero/internal/util/atomicwrite"
)

const notesFile = "notes.json"

// ErrNotFound indica que no existe una nota con ese título.
var ErrNotFound = errors.New("notes: not found")

// Note es una plantilla nombrada.
type Note struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Store persiste las notas en un archivo JSON bajo el mismo root FS que los
// demás stores.
type Store struct {
	path  string
	mu    sync.Mutex
	notes []Note
}

// New carga (o defaultea) las notas desde root/notes.json.
func New(root string) (*Store, error) {
	s := &Store{path: filepath.Join(root, notesFile)}

	b, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &s.notes); err != nil {
			return nil, fmt.Errorf("notes: parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		// primer arranque: sin notas
	default:
		return nil, fmt.Errorf("notes: read %s: %w", s.path, err)
	}
	return s, nil
}

// List retorna una copia de todas las notas.
func (s *Store) List(ctx context.Context) ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out, nil
}

// Save agrega una nota nueva y persiste.
func (s *Store) Save(ctx context.Context, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = append(s.notes, n)
	if err := s.persistLocked(); err != nil {
		s.notes = s.notes[:len(s.notes)-1]
		return err
	}
	return nil
}

// Edit reemplaza la primera nota cuyo título coincida con original.
func (s *Store) Edit(ctx context.Context, original string, n Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].Title != original {
			continue
		}
		prev := s.notes[i]
		s.notes[i] = n
		if err := s.persistLocked(); err != nil {
			s.notes[i] = prev
			return err
		}
		return nil
	}
	return ErrNotFound
}

func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.notes, "", "  ")
	if err != nil {
		return fmt.Errorf("notes: marshal: %w", err)
	}
	if err := atomicwrite.WriteFile(s.path, b, 0644); err != nil {
		return fmt.Errorf("notes: persist: %w", err)
	}
	return nil
}

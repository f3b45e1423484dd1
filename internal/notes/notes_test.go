package notes

import (
	"context"
	"errors"
	"testing"
)

func TestStore_SaveListReload(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, n := range []Note{
		{Title: "bienvenida", Body: "<p>hola</p>"},
		{Title: "promo", Body: "<p>oferta</p>"},
	} {
		if err := s.Save(ctx, n); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// reabrir desde disco
	s2, err := New(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ns, err := s2.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ns) != 2 || ns[0].Title != "bienvenida" || ns[1].Title != "promo" {
		t.Fatalf("notas inesperadas: %+v", ns)
	}
}

func TestStore_Edit(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Save(ctx, Note{Title: "borrador", Body: "v1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// editar puede renombrar
	if err := s.Edit(ctx, "borrador", Note{Title: "final", Body: "v2"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	ns, _ := s.List(ctx)
	if len(ns) != 1 || ns[0].Title != "final" || ns[0].Body != "v2" {
		t.Fatalf("tras editar: %+v", ns)
	}

	if err := s.Edit(ctx, "no-existe", Note{Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("esperaba ErrNotFound, got %v", err)
	}
}

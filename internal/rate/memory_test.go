package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_AllowThenBlock(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour) // ventana larga para que no rote en el test
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "cliente-a")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d bloqueado antes del límite", i+1)
		}
		if want := int64(3 - i - 1); res.Remaining != want {
			t.Fatalf("hit %d: remaining = %d, esperaba %d", i+1, res.Remaining, want)
		}
	}

	res, err := l.Allow(ctx, "cliente-a")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("cuarto hit debió bloquearse: %+v", res)
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %s", res.RetryAfter)
	}
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Hour)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("primer hit de a bloqueado")
	}
	if res, _ := l.Allow(ctx, "a"); res.Allowed {
		t.Fatal("segundo hit de a permitido")
	}
	// otra key no comparte contador
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Fatal("primer hit de b bloqueado")
	}
}

package apikey

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	phc, err := Hash(Default, "clave-super-secreta")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("formato PHC inesperado: %q", phc)
	}

	if !Verify("clave-super-secreta", phc) {
		t.Fatal("verify debió aceptar la clave correcta")
	}
	if Verify("clave-incorrecta", phc) {
		t.Fatal("verify aceptó una clave incorrecta")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	for _, phc := range []string{
		"",
		"no-es-phc",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGs", // variante no soportada
	} {
		if Verify("x", phc) {
			t.Fatalf("esperaba rechazo con %q", phc)
		}
	}
}

func TestHash_SaltVaries(t *testing.T) {
	a, err := Hash(Default, "misma")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Hash(Default, "misma")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("dos hashes con la misma clave no deben coincidir (salt aleatorio)")
	}
}

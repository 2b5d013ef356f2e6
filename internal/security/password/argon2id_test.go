package password

import (
	"strings"
	"testing"
)

// parámetros bajos para que los tests sean rápidos.
var testParams = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(testParams)
	for _, pw := range []string{"a", "Secret123!", "contraseña-ñandú", strings.Repeat("x", 200)} {
		enc, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("hash %q: %v", pw, err)
		}
		if !strings.HasPrefix(enc, "$argon2id$v=19$m=8192,t=1,p=1$") {
			t.Fatalf("unexpected encoding %q", enc)
		}
		if strings.Contains(enc, pw) {
			t.Fatalf("encoding leaks plaintext")
		}
		if !h.Verify(pw, enc) {
			t.Fatalf("verify failed for %q", pw)
		}
	}
}

func TestVerifyRejectsOtherPassword(t *testing.T) {
	h := NewHasher(testParams)
	enc, err := h.Hash("Correct1!")
	if err != nil {
		t.Fatal(err)
	}
	for _, pw := range []string{"Correct1", "correct1!", "", "Correct1!!"} {
		if h.Verify(pw, enc) {
			t.Fatalf("verify(%q) should be false", pw)
		}
	}
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher(testParams)
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
	if !h.Verify("same-password", a) || !h.Verify("same-password", b) {
		t.Fatal("both hashes must verify")
	}
}

func TestHashEmpty(t *testing.T) {
	if _, err := NewHasher(testParams).Hash(""); err != ErrEmptyPassword {
		t.Fatalf("err = %v, want ErrEmptyPassword", err)
	}
}

func TestVerifyMalformedIsFalse(t *testing.T) {
	h := NewHasher(testParams)
	bad := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=999999999,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$",
	}
	for _, enc := range bad {
		if h.Verify("whatever", enc) {
			t.Fatalf("verify with %q should be false", enc)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	old := NewHasher(testParams)
	enc, _ := old.Hash("Secret123!")
	if old.NeedsRehash(enc) {
		t.Fatal("same params must not need rehash")
	}
	stronger := NewHasher(Params{Memory: 16 * 1024, Time: 2, Parallelism: 1})
	if !stronger.NeedsRehash(enc) {
		t.Fatal("different params must need rehash")
	}
	// un hash viejo sigue verificando con el hasher nuevo
	if !stronger.Verify("Secret123!", enc) {
		t.Fatal("old hash must still verify")
	}
	if !stronger.NeedsRehash("garbage") {
		t.Fatal("garbage must need rehash")
	}
}

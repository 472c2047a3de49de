package poorlock

import (
	"errors"
	"testing"
)

func TestNewKey(t *testing.T) {
	for _, s := range []string{"", " ", "\t\n"} {
		if _, err := NewKey(s); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("NewKey(%q) err = %v, want ErrInvalidKey", s, err)
		}
	}

	a := MustKey("repo:alpha")
	b := MustKey("repo:alpha")
	if a != b {
		t.Fatalf("keys with equal strings must be equal")
	}
	if a.String() != "repo:alpha" {
		t.Fatalf("String() = %q", a.String())
	}
	seen := map[Key]int{a: 1}
	if seen[b] != 1 {
		t.Fatalf("equal keys must hash alike")
	}
}

func TestMustKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustKey("")
}

func TestZeroKeyRejected(t *testing.T) {
	l := New(NewMemoryStore())
	var zero Key
	if err := l.Lock(ctx(t), zero); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Lock(zero) = %v, want ErrInvalidKey", err)
	}
	if err := l.Unlock(ctx(t), zero); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Unlock(zero) = %v, want ErrInvalidKey", err)
	}
}

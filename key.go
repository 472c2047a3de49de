package poorlock

import (
	"fmt"
	"strings"
)

// Key names the resource being protected. It doubles as the primary key of
// the lock record in the backing store.
type Key struct {
	s string
}

// NewKey validates s and returns it as a Key.
func NewKey(s string) (Key, error) {
	if strings.TrimSpace(s) == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key{s: s}, nil
}

// MustKey is like NewKey but panics on an invalid key.
func MustKey(s string) Key {
	k, err := NewKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) String() string {
	return k.s
}

// IsZero reports whether k was never set by NewKey.
func (k Key) IsZero() bool {
	return k.s == ""
}

package poorlock

import (
	"context"
	"testing"
)

// testStoreContract drives a store through the full acquire/release state
// machine, including the second claimant transition.
func testStoreContract(t *testing.T, store LockStore) {
	t.Helper()
	c := context.Background()
	key := randomKey(t)

	steps := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{"release never locked", func() error { return store.Release(c, key) }, IsAlreadyUnlocked},
		{"acquire", func() error { return store.TryAcquire(c, key) }, isNil},
		{"acquire held", func() error { return store.TryAcquire(c, key) }, IsAlreadyLocked},
		{"release", func() error { return store.Release(c, key) }, isNil},
		{"release again", func() error { return store.Release(c, key) }, IsAlreadyUnlocked},
		{"acquire after release", func() error { return store.TryAcquire(c, key) }, isNil},
		{"release", func() error { return store.Release(c, key) }, isNil},
	}

	if sc, ok := store.(SecondClaimer); ok {
		steps = append(steps, []struct {
			name  string
			run   func() error
			check func(error) bool
		}{
			{"second on free key", func() error { return sc.TryAcquireSecond(c, key) }, IsAlreadyLocked},
			{"first", func() error { return store.TryAcquire(c, key) }, isNil},
			{"second", func() error { return sc.TryAcquireSecond(c, key) }, isNil},
			{"second again", func() error { return sc.TryAcquireSecond(c, key) }, IsAlreadyLocked},
			{"first on second-held key", func() error { return store.TryAcquire(c, key) }, IsAlreadyLocked},
			{"release second", func() error { return store.Release(c, key) }, isNil},
			{"release again", func() error { return store.Release(c, key) }, IsAlreadyUnlocked},
		}...)
	}

	for _, step := range steps {
		if err := step.run(); !step.check(err) {
			t.Fatalf("%s: unexpected result %v", step.name, err)
		}
	}
}

func isNil(err error) bool {
	return err == nil
}

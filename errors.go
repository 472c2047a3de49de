package poorlock

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyLocked is returned when an acquisition precondition fails
	// because the resource is held (or not in the expected prior state).
	ErrAlreadyLocked = errors.New("poorlock: already locked")

	// ErrAlreadyUnlocked is returned when a release finds no lock record.
	ErrAlreadyUnlocked = errors.New("poorlock: already unlocked")

	// ErrTimeout is returned when a bounded wait runs out of budget.
	ErrTimeout = errors.New("poorlock: timed out waiting for lock")

	// ErrAccess marks a failure to talk to the backing store. It is never
	// retried by the Locker.
	ErrAccess = errors.New("poorlock: store access failed")

	// ErrInvalidKey is returned by NewKey for empty keys.
	ErrInvalidKey = errors.New("poorlock: invalid key")

	// ErrUnsupported is returned when the store cannot perform the
	// second claimant transition.
	ErrUnsupported = errors.New("poorlock: operation not supported by store")
)

// Error carries the operation and key that failed along with the error kind.
// Kind is one of the sentinel errors above; Err is the underlying store error
// for ErrAccess and nil otherwise.
type Error struct {
	Op   string
	Key  Key
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %q: %v", e.Op, e.Key.String(), e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

const (
	opAcquire       = "acquire"
	opAcquireSecond = "acquire second"
	opRelease       = "release"
	opWait          = "wait"
)

func alreadyLocked(op string, key Key) error {
	return &Error{Op: op, Key: key, Kind: ErrAlreadyLocked}
}

func alreadyUnlocked(key Key) error {
	return &Error{Op: opRelease, Key: key, Kind: ErrAlreadyUnlocked}
}

func accessError(op string, key Key, err error) error {
	return &Error{Op: op, Key: key, Kind: ErrAccess, Err: err}
}

func timeoutError(key Key) error {
	return &Error{Op: opWait, Key: key, Kind: ErrTimeout}
}

func IsAlreadyLocked(err error) bool   { return errors.Is(err, ErrAlreadyLocked) }
func IsAlreadyUnlocked(err error) bool { return errors.Is(err, ErrAlreadyUnlocked) }
func IsTimeout(err error) bool         { return errors.Is(err, ErrTimeout) }
func IsAccess(err error) bool          { return errors.Is(err, ErrAccess) }

package poorlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LockStore performs the two atomic operations the Locker needs from a
// backing store. Implementations must not retry internally.
type LockStore interface {
	// TryAcquire writes the lock record for key if no status is present.
	// It returns ErrAlreadyLocked when the precondition fails and ErrAccess
	// for any other store failure.
	TryAcquire(ctx context.Context, key Key) error

	// Release deletes the lock record for key. It returns ErrAlreadyUnlocked
	// when no record existed.
	Release(ctx context.Context, key Key) error
}

// SecondClaimer is implemented by stores that support the two-phase claim:
// a record in StatusFirst can be moved to StatusSecond without a release.
type SecondClaimer interface {
	TryAcquireSecond(ctx context.Context, key Key) error
}

// Locker turns single conditional writes into blocking, bounded waits. It
// holds no state besides its configuration; all coordination happens in the
// store, so a Locker is safe for concurrent use.
type Locker struct {
	store      LockStore
	delay      time.Duration
	multiplier float64
	maxDelay   time.Duration
	logger     *slog.Logger
	metrics    Metrics
}

func New(store LockStore, opts ...Option) *Locker {
	l := &Locker{
		store:   store,
		delay:   defaultPollDelay,
		logger:  discardLogger(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PollDelay returns the initial delay between attempts in Wait.
func (l *Locker) PollDelay() time.Duration {
	return l.delay
}

// Lock makes a single acquisition attempt.
func (l *Locker) Lock(ctx context.Context, key Key) error {
	if key.IsZero() {
		return &Error{Op: opAcquire, Key: key, Kind: ErrInvalidKey}
	}
	err := l.store.TryAcquire(ctx, key)
	l.observe(opAcquire, key, err)
	return err
}

// AllowOnlyFirstComer is an alias for Lock.
func (l *Locker) AllowOnlyFirstComer(ctx context.Context, key Key) error {
	return l.Lock(ctx, key)
}

// LockSecond moves a lock held by a first claimant to the second claimant.
// It fails with ErrAlreadyLocked unless the record is in StatusFirst.
func (l *Locker) LockSecond(ctx context.Context, key Key) error {
	if key.IsZero() {
		return &Error{Op: opAcquireSecond, Key: key, Kind: ErrInvalidKey}
	}
	sc, ok := l.store.(SecondClaimer)
	if !ok {
		return &Error{Op: opAcquireSecond, Key: key, Kind: ErrUnsupported}
	}
	err := sc.TryAcquireSecond(ctx, key)
	l.observe(opAcquireSecond, key, err)
	return err
}

// Unlock makes a single release attempt. There is no local notion of
// ownership: every call goes to the store.
func (l *Locker) Unlock(ctx context.Context, key Key) error {
	if key.IsZero() {
		return &Error{Op: opRelease, Key: key, Kind: ErrInvalidKey}
	}
	err := l.store.Release(ctx, key)
	l.observe(opRelease, key, err)
	return err
}

// Wait retries Lock until it succeeds or budget is used up. A zero budget
// still makes one attempt. Between attempts it sleeps min(remaining, delay);
// the sleep is the only point where ctx cancellation is observed, so an
// attempt already in flight completes even past the deadline. Access errors
// are returned immediately.
func (l *Locker) Wait(ctx context.Context, key Key, budget time.Duration) error {
	start := time.Now()
	rest := budget
	delay := l.delay
	attempts := 0

	for {
		attempts++
		err := l.Lock(ctx, key)
		if err == nil {
			l.metrics.ObserveWait(time.Since(start).Seconds(), resultOK)
			if attempts > 1 {
				l.logger.Info("lock acquired after waiting",
					"key", key.String(),
					"attempts", attempts,
					"elapsed", time.Since(start),
				)
			}
			return nil
		}
		if !IsAlreadyLocked(err) {
			l.metrics.ObserveWait(time.Since(start).Seconds(), resultError)
			return err
		}
		if rest <= 0 {
			l.metrics.IncTimeout()
			l.metrics.ObserveWait(time.Since(start).Seconds(), resultTimeout)
			return timeoutError(key)
		}

		d := min(rest, delay)
		if err := sleep(ctx, d); err != nil {
			l.metrics.ObserveWait(time.Since(start).Seconds(), resultCanceled)
			return fmt.Errorf("wait %q: %w", key.String(), err)
		}
		rest -= d
		delay = l.nextDelay(delay)
	}
}

func (l *Locker) nextDelay(d time.Duration) time.Duration {
	if l.multiplier <= 1 {
		return d
	}
	next := time.Duration(float64(d) * l.multiplier)
	if l.maxDelay > 0 && next > l.maxDelay {
		return l.maxDelay
	}
	return next
}

func (l *Locker) observe(op string, key Key, err error) {
	result := resultOf(err)
	l.metrics.IncAttempt(op, result)
	if result == resultError {
		l.logger.Warn("lock store failure", "op", op, "key", key.String(), "err", err)
		return
	}
	l.logger.Debug("lock attempt", "op", op, "key", key.String(), "result", result)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

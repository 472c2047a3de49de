package poorlock

import (
	"context"
	"time"
)

// RunWithLock waits up to budget for key, runs work while holding it and
// releases it afterwards. The release happens on every exit path of work,
// including a panic, which is re-raised once the lock is released.
//
// The first error wins: a failed wait (work never runs), then the error from
// work, then the release error. A release error that cannot be returned is
// logged by the Locker's logger.
func RunWithLock[R any](ctx context.Context, l *Locker, key Key, budget time.Duration, work func(context.Context) (R, error)) (result R, err error) {
	if err = l.Wait(ctx, key, budget); err != nil {
		return result, err
	}

	defer func() {
		p := recover()
		// the record must go even if the caller's context is already done
		unlockErr := l.Unlock(context.WithoutCancel(ctx), key)
		switch {
		case unlockErr == nil:
		case p != nil || err != nil:
			l.logger.Error("release after work failed",
				"key", key.String(),
				"err", unlockErr,
				"work_err", err,
				"panic", p != nil,
			)
		default:
			err = unlockErr
		}
		if p != nil {
			panic(p)
		}
	}()

	return work(ctx)
}

// Do is RunWithLock for work without a result.
func (l *Locker) Do(ctx context.Context, key Key, budget time.Duration, work func(context.Context) error) error {
	_, err := RunWithLock(ctx, l, key, budget, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}

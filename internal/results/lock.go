package results

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultLockTimeout bounds how long a save waits for another instance.
const DefaultLockTimeout = 5 * time.Second

// ErrLocked is returned when the summary lock stays held past the timeout.
var ErrLocked = errors.New("results: summary file is locked by another process")

var errWouldBlock = errors.New("lock held")

// acquireLock takes an exclusive advisory lock on lockPath, retrying with
// backoff while another process holds it. The returned func releases it.
func acquireLock(lockPath string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("results: open lock file %s: %w", lockPath, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = timeout
	b.RandomizationFactor = 0.1

	err = backoff.Retry(func() error {
		err := tryLock(f)
		if err == nil || errors.Is(err, errWouldBlock) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("results: acquire lock %s: %w", lockPath, err)
	}
	return func() {
		unlock(f)
		_ = f.Close()
	}, nil
}

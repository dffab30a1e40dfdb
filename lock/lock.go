// Package lock provides an advisory, exclusive file lock shared between
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultPollInterval is how often a contended lock is retried.
const DefaultPollInterval = 50 * time.Millisecond

var (
	// ErrTimeout is returned when the lock could not be acquired in time
	ErrTimeout = errors.New("lock: timed out waiting for lock")
	// errWouldBlock is returned by tryLock when another holder owns the lock
	errWouldBlock = errors.New("lock: held by another owner")
)

// Options controls lock acquisition.
type Options struct {
	// Timeout bounds the wait; zero waits until the context is done
	Timeout time.Duration
	// PollInterval is the retry interval; DefaultPollInterval when zero
	PollInterval time.Duration
	// Logger receives the contention warning; slog.Default() when nil
	Logger *slog.Logger
}

// Lock is a held advisory lock on a file. The lock file is left on disk
// after Release.
type Lock struct {
	path string
	file *os.File
	once sync.Once
	err  error
}

// Acquire takes an exclusive lock on path, creating the file when needed.
// While another process or another Lock in this process holds it, Acquire
// polls and logs a warning once. It fails with ErrTimeout after
// opts.Timeout, or with the context error when ctx is done.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // derived from archive locations
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	warned := false
	for {
		err := tryLock(f)
		if err == nil {
			return &Lock{path: path, file: f}, nil
		}
		if !errors.Is(err, errWouldBlock) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if !warned {
			log := opts.Logger
			if log == nil {
				log = slog.Default()
			}
			log.Warn("waiting for lock held by another process", "path", path)
			warned = true
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-deadline:
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		case <-time.After(poll):
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// ReadStamp returns the contents of the lock file. Holders use it to record
// what the guarded file was built from.
func (l *Lock) ReadStamp() (string, error) {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to read lock stamp: %w", err)
	}
	b, err := io.ReadAll(l.file)
	if err != nil {
		return "", fmt.Errorf("failed to read lock stamp: %w", err)
	}
	return string(b), nil
}

// WriteStamp replaces the contents of the lock file with stamp.
func (l *Lock) WriteStamp(stamp string) error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to write lock stamp: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(stamp), 0); err != nil {
		return fmt.Errorf("failed to write lock stamp: %w", err)
	}
	return nil
}

// Release unlocks and closes the lock file. It is safe to call more than
// once; later calls return the first result.
func (l *Lock) Release() error {
	l.once.Do(func() {
		l.err = errors.Join(unlock(l.file), l.file.Close())
	})
	return l.err
}

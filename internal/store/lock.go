package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// lockRetryDelay is how often a blocked advisory file lock is retried.
const lockRetryDelay = 10 * time.Millisecond

// pathLock serializes transactions on one database file within the process.
type pathLock struct {
	sem  *semaphore.Weighted
	refs int // holders plus waiters; the entry is dropped at zero
}

// lockRegistry hands out one pathLock per canonical database path. It is
// shared by every Store in the process, since a Store is cheap and callers
// may open several for the same file.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

var locks = &lockRegistry{locks: make(map[string]*pathLock)}

func (r *lockRegistry) ref(path string) *pathLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	pl, ok := r.locks[path]
	if !ok {
		pl = &pathLock{sem: semaphore.NewWeighted(1)}
		r.locks[path] = pl
	}
	pl.refs++
	return pl
}

func (r *lockRegistry) unref(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pl, ok := r.locks[path]
	if !ok {
		return
	}
	pl.refs--
	if pl.refs == 0 {
		delete(r.locks, path)
	}
}

// acquire takes exclusive access to path: first the in-process semaphore,
// then (if processLock) an advisory lock on path+".lock". Both waits share
// one deadline. Failures are *OpError with Kind ErrLocked or ErrIO. The
// returned release func must be called exactly once.
func (r *lockRegistry) acquire(path string, timeout time.Duration, processLock bool) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pl := r.ref(path)
	if err := pl.sem.Acquire(ctx, 1); err != nil {
		r.unref(path)
		return nil, &OpError{Path: path, Kind: ErrLocked, Err: fmt.Errorf("waited %v for in-process lock", timeout)}
	}

	var fl *flock.Flock
	if processLock {
		fl = flock.New(path + ".lock")
		ok, err := fl.TryLockContext(ctx, lockRetryDelay)
		if err != nil || !ok {
			pl.sem.Release(1)
			r.unref(path)
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				return nil, &OpError{Path: path, Kind: ErrLocked, Err: fmt.Errorf("waited %v for file lock %s", timeout, fl.Path())}
			}
			return nil, &OpError{Path: path, Kind: ErrIO, Err: fmt.Errorf("file lock %s: %w", fl.Path(), err)}
		}
	}

	return func() {
		if fl != nil {
			_ = fl.Unlock()
		}
		pl.sem.Release(1)
		r.unref(path)
	}, nil
}

// canonicalPath resolves path to an absolute, cleaned path with symlinks in
// its directory resolved, so aliases of one file share one lock. The file
// itself need not exist.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dir, base := filepath.Dir(abs), filepath.Base(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return filepath.Join(dir, base), nil
}

package dwca

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nao1215/dwca/domain/model"
	"github.com/nao1215/dwca/lock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Preparer turns the files of an archive into derivatives sorted by their
// identifier column, reusing earlier output when it is newer than every
// source file. Work on one file is serialized across processes with an
// advisory lock and across goroutines of this process with a single flight
// group.
type Preparer struct {
	opts  Options
	group singleflight.Group
}

// NewPreparer creates a Preparer.
func NewPreparer(opts Options) *Preparer {
	return &Preparer{opts: opts}
}

// SortedPath returns the location of fd's sorted derivative.
func (p *Preparer) SortedPath(fd *model.FileDescriptor) (string, error) {
	paths, err := derivativesOf(p.opts.WorkDir, fd)
	if err != nil {
		return "", err
	}
	return paths.sorted, nil
}

// SortedDescriptor returns a copy of fd that reads its sorted derivative.
func (p *Preparer) SortedDescriptor(fd *model.FileDescriptor) (*model.FileDescriptor, error) {
	sorted, err := p.SortedPath(fd)
	if err != nil {
		return nil, err
	}
	return fd.WithLocations([]string{sorted}, model.CanonicalDialect()), nil
}

// EnsureSorted makes fd's sorted derivative current. It reports whether
// any normalizing or sorting was done; false means the existing derivative
// was newer than every source location and was built with the same
// identifier column and dialect. Concurrent callers for the same file share
// one run; a caller whose context ends stops waiting without failing the
// others.
func (p *Preparer) EnsureSorted(ctx context.Context, fd *model.FileDescriptor) (bool, error) {
	errCtx := NewErrorContext("prepare", fd.Location()).WithRowType(fd.RowType().String())
	if err := fd.Validate(); err != nil {
		return false, errCtx.Error(err)
	}
	if !fd.HasID() {
		return false, errCtx.Error(model.ErrMissingID)
	}
	paths, err := derivativesOf(p.opts.WorkDir, fd)
	if err != nil {
		return false, errCtx.Error(err)
	}

	key := paths.sorted + "\x00" + sortStamp(fd)
	for {
		ch := p.group.DoChan(key, func() (any, error) {
			return p.ensureSorted(ctx, fd, paths)
		})
		select {
		case <-ctx.Done():
			return false, errCtx.Error(ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				// the run belonged to a caller that gave up
				if res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return false, errCtx.Error(res.Err)
			}
			return res.Val.(bool), nil //nolint:forcetypeassert // ensureSorted returns bool
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// PrepareAll runs EnsureSorted for every descriptor using up to
// PrepareConcurrency goroutines. The result reports per row type whether
// work was done.
func (p *Preparer) PrepareAll(ctx context.Context, fds ...*model.FileDescriptor) (map[model.Term]bool, error) {
	done := make([]bool, len(fds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.prepareConcurrency())
	for i, fd := range fds {
		g.Go(func() error {
			worked, err := p.EnsureSorted(ctx, fd)
			done[i] = worked
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[model.Term]bool, len(fds))
	for i, fd := range fds {
		result[fd.RowType()] = done[i]
	}
	return result, nil
}

func (p *Preparer) ensureSorted(ctx context.Context, fd *model.FileDescriptor, paths derivatives) (worked bool, err error) {
	log := p.opts.logger().With("row_type", fd.RowType().String(), "file", fd.Location())

	l, err := lock.Acquire(ctx, paths.lock, lock.Options{
		Timeout:      p.opts.LockTimeout,
		PollInterval: p.opts.LockPollInterval,
		Logger:       log,
	})
	if err != nil {
		return false, err
	}
	defer func() {
		if releaseErr := l.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release lock: %w", releaseErr))
		}
	}()

	newest, err := latestModTime(fd.Locations())
	if err != nil {
		return false, err
	}
	stamp := sortStamp(fd)
	if info, statErr := os.Stat(paths.sorted); statErr == nil && info.ModTime().After(newest) {
		previous, err := l.ReadStamp()
		if err != nil {
			return false, err
		}
		if previous == stamp {
			log.Debug("sorted file is up to date", "sorted", paths.sorted)
			return false, nil
		}
		log.Debug("sorted file was built with another layout", "sorted", paths.sorted)
	}

	start := time.Now()
	inputs := fd.Locations()
	d := fd.Dialect()
	if d.NeedsNormalization() {
		defer func() {
			for _, tmp := range paths.normalized {
				if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					err = errors.Join(err, fmt.Errorf("failed to remove %s: %w", tmp, rmErr))
				}
			}
		}()
		normalizer := p.opts.normalizer()
		for i, loc := range inputs {
			if err := normalizer.Normalize(ctx, loc, paths.normalized[i], d); err != nil {
				return false, fmt.Errorf("failed to normalize %s: %w", loc, err)
			}
		}
		inputs = paths.normalized
		d = model.CanonicalDialect().WithHeaderLines(d.HeaderLines)
	}

	if err := p.opts.sorter().SortByColumn(ctx, inputs, paths.sorted, d, fd.IDIndex()); err != nil {
		return false, fmt.Errorf("failed to sort: %w", err)
	}
	if err := l.WriteStamp(stamp); err != nil {
		return false, err
	}
	log.Info("prepared sorted file", "sorted", paths.sorted, "elapsed", time.Since(start))
	return true, nil
}

// sortStamp describes what a sorted derivative depends on besides the
// source contents.
func sortStamp(fd *model.FileDescriptor) string {
	d := fd.Dialect()
	return fmt.Sprintf("id=%d delimiter=%q quote=%q terminator=%q encoding=%s header=%d\n",
		fd.IDIndex(), d.Delimiter, d.Quote, d.LineTerminator, d.Encoding, d.HeaderLines)
}

// latestModTime returns the newest modification time of the given files.
func latestModTime(locations []string) (time.Time, error) {
	var newest time.Time
	for _, loc := range locations {
		info, err := os.Stat(loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to stat %s: %w", loc, err)
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest, nil
}

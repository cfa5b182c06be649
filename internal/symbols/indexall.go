package symbols

import (
	"context"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds the read and parse of a single module.
const DefaultTimeout = 30 * time.Second

// CacheSource tells where an index came from.
type CacheSource uint8

const (
	FromStore CacheSource = iota
	FromMemory
	FromDisk
)

func (s CacheSource) String() string {
	switch s {
	case FromMemory:
		return "memory"
	case FromDisk:
		return "disk"
	default:
		return "store"
	}
}

// Options configure IndexAll.
type Options struct {
	Jobs    int           // 0 = GOMAXPROCS
	Timeout time.Duration // per module, 0 = DefaultTimeout
	Memory  *MemoryCache
	Disk    *DiskCache
	// Notify is called from worker goroutines when a module starts (done=false)
	// and when it finishes (done=true).
	Notify func(path string, done bool, res *Result)
}

// Result is the outcome for one module path.
type Result struct {
	Path    string
	Index   *Index
	Err     error
	Source  CacheSource
	Elapsed time.Duration
	// CacheErr records a non-fatal disk cache failure.
	CacheErr error
}

// IndexAll indexes every path concurrently. Results are aligned with paths;
// a failure in one module never affects the others. The only error returned
// is the context's, when the run is cancelled.
func IndexAll(ctx context.Context, paths []string, opts Options) ([]Result, error) {
	results := make([]Result, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i, path := range paths {
		g.Go(func() error {
			// Проверка отмены
			select {
			case <-gctx.Done():
				results[i] = Result{Path: path, Err: gctx.Err()}
				return gctx.Err()
			default:
			}
			if opts.Notify != nil {
				opts.Notify(path, false, nil)
			}

			start := time.Now()
			mctx, cancel := context.WithTimeout(gctx, timeout)
			res := indexOne(mctx, path, opts)
			cancel()
			res.Elapsed = time.Since(start)

			// у каждой горутины свой индекс i, мьютекс не нужен
			results[i] = res
			if opts.Notify != nil {
				opts.Notify(path, true, &results[i])
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

type loaded struct {
	idx      *Index
	source   CacheSource
	cacheErr error
}

func indexOne(ctx context.Context, path string, opts Options) Result {
	out, err := bounded(ctx, path, func() (loaded, error) {
		var l loaded
		data, err := os.ReadFile(path)
		if err != nil {
			return l, &ModuleNotFoundError{Path: path, Err: err}
		}
		digest := Sum(data)
		if cached, ok := opts.Memory.Get(digest); ok {
			l.idx, l.source = withPath(cached, path), FromMemory
			return l, nil
		}
		if cached, ok, cerr := opts.Disk.Get(digest); cerr != nil {
			l.cacheErr = cerr
		} else if ok {
			opts.Memory.Put(cached)
			l.idx, l.source = withPath(cached, path), FromDisk
			return l, nil
		}
		built, err := parseAt(path, data)
		if err != nil {
			return l, err
		}
		opts.Memory.Put(built)
		if cerr := opts.Disk.Put(built); cerr != nil {
			l.cacheErr = cerr
		}
		l.idx = built
		return l, nil
	})
	return Result{Path: path, Index: out.idx, Err: err, Source: out.source, CacheErr: out.cacheErr}
}

// withPath returns a shallow copy of a cached index bound to path; the type
// table is shared and never written.
func withPath(idx *Index, path string) *Index {
	cp := *idx
	cp.Path = path
	return &cp
}

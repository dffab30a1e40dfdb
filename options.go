package dwca

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nao1215/dwca/domain/model"
	"github.com/nao1215/dwca/tabular"
	"gopkg.in/yaml.v3"
)

// SortBackend selects the tabular.Sorter used to prepare extension joins.
type SortBackend string

const (
	// SortBackendMerge sorts with an on-disk merge sort (default)
	SortBackendMerge SortBackend = "merge"
	// SortBackendSQLite sorts through a scratch SQLite database
	SortBackendSQLite SortBackend = "sqlite"
)

// Default option values
const (
	// DefaultLockTimeout is zero: wait for the lock until the context ends
	DefaultLockTimeout time.Duration = 0
	// DefaultPrepareConcurrency prepares one file at a time
	DefaultPrepareConcurrency = 1
)

// Options configures how archives are prepared and read.
//
// Example:
//
//	options := dwca.NewOptions().
//		WithWorkDir("/var/cache/dwca").
//		WithLockTimeout(time.Minute)
//
//	reader, err := dwca.NewReader(archive, options)
type Options struct {
	// WorkDir holds derivative files. Empty means next to the source files.
	WorkDir string `yaml:"work_dir"`
	// TempDir holds sort scratch files. Empty means next to the output.
	TempDir string `yaml:"temp_dir"`
	// LockTimeout bounds the wait for another preparer; zero waits forever
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// LockPollInterval is how often a held lock is retried
	LockPollInterval time.Duration `yaml:"lock_poll_interval"`
	// SortBackend picks the sorter: "merge" or "sqlite"
	SortBackend SortBackend `yaml:"sort_backend"`
	// SortRunSize is the number of rows per in-memory run of the merge sorter
	SortRunSize int `yaml:"sort_run_size"`
	// SortMemoryLimitMB spills merge sort runs early once the heap reaches
	// it; zero disables the check
	SortMemoryLimitMB int64 `yaml:"sort_memory_limit_mb"`
	// PrepareConcurrency is the number of files prepared in parallel
	PrepareConcurrency int `yaml:"prepare_concurrency"`
	// ReplaceNulls collapses null literals such as \N and NULL to null
	ReplaceNulls bool `yaml:"replace_nulls"`
	// ReplaceEntities unescapes HTML and XML character entities
	ReplaceEntities bool `yaml:"replace_entities"`

	// Logger receives warnings and diagnostics; slog.Default() when nil
	Logger *slog.Logger `yaml:"-"`
	// Normalizer overrides the default dialect normalizer
	Normalizer tabular.Normalizer `yaml:"-"`
	// Sorter overrides the sorter selected by SortBackend
	Sorter tabular.Sorter `yaml:"-"`
}

// NewOptions creates default options: derivatives next to the sources, no
// lock timeout, merge sort, sequential preparation and full value cleaning.
func NewOptions() Options {
	return Options{
		LockTimeout:        DefaultLockTimeout,
		SortBackend:        SortBackendMerge,
		SortRunSize:        tabular.DefaultRunSize,
		PrepareConcurrency: DefaultPrepareConcurrency,
		ReplaceNulls:       true,
		ReplaceEntities:    true,
	}
}

// LoadOptions reads options from a YAML file. Keys missing from the file
// keep their NewOptions values.
//
//	work_dir: /var/cache/dwca
//	lock_timeout: 30s
//	sort_backend: sqlite
//	prepare_concurrency: 4
func LoadOptions(path string) (Options, error) {
	opts := NewOptions()
	data, err := os.ReadFile(path) //nolint:gosec // caller provided configuration file
	if err != nil {
		return opts, NewErrorContext("load options", path).Error(err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, NewErrorContext("load options", path).Error(err)
	}
	if err := opts.Validate(); err != nil {
		return opts, NewErrorContext("load options", path).Error(err)
	}
	return opts, nil
}

// WithWorkDir sets the directory for derivative files. Each source
// directory gets its own namespace below it.
func (o Options) WithWorkDir(dir string) Options {
	o.WorkDir = dir
	return o
}

// WithTempDir sets the directory for sort scratch files.
func (o Options) WithTempDir(dir string) Options {
	o.TempDir = dir
	return o
}

// WithLockTimeout bounds how long preparation waits for another process.
// Zero waits until the context is done.
func (o Options) WithLockTimeout(timeout time.Duration) Options {
	o.LockTimeout = timeout
	return o
}

// WithSortBackend selects the sorter.
//
// Options:
//   - SortBackendMerge: in-memory runs merged from disk (default)
//   - SortBackendSQLite: scratch SQLite database
func (o Options) WithSortBackend(backend SortBackend) Options {
	o.SortBackend = backend
	return o
}

// WithSortRunSize sets the number of rows per merge sort run.
func (o Options) WithSortRunSize(n int) Options {
	o.SortRunSize = n
	return o
}

// WithSortMemoryLimit caps the heap used by merge sort runs, in megabytes.
func (o Options) WithSortMemoryLimit(mb int64) Options {
	o.SortMemoryLimitMB = mb
	return o
}

// WithPrepareConcurrency sets how many files are prepared in parallel.
func (o Options) WithPrepareConcurrency(n int) Options {
	o.PrepareConcurrency = n
	return o
}

// WithCleaning switches null literal and entity replacement.
func (o Options) WithCleaning(replaceNulls, replaceEntities bool) Options {
	o.ReplaceNulls = replaceNulls
	o.ReplaceEntities = replaceEntities
	return o
}

// WithLogger sets the logger.
func (o Options) WithLogger(logger *slog.Logger) Options {
	o.Logger = logger
	return o
}

// WithNormalizer replaces the normalizer.
func (o Options) WithNormalizer(n tabular.Normalizer) Options {
	o.Normalizer = n
	return o
}

// WithSorter replaces the sorter, ignoring SortBackend.
func (o Options) WithSorter(s tabular.Sorter) Options {
	o.Sorter = s
	return o
}

// Validate rejects option values no reader can work with.
func (o Options) Validate() error {
	if o.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative: %s", o.LockTimeout)
	}
	if o.SortMemoryLimitMB < 0 {
		return fmt.Errorf("sort memory limit must not be negative: %d", o.SortMemoryLimitMB)
	}
	if o.PrepareConcurrency < 0 {
		return fmt.Errorf("prepare concurrency must not be negative: %d", o.PrepareConcurrency)
	}
	if o.Sorter == nil {
		switch o.SortBackend {
		case "", SortBackendMerge, SortBackendSQLite:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSortBackend, o.SortBackend)
		}
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) cleanOptions() model.CleanOptions {
	return model.CleanOptions{
		ReplaceNulls:    o.ReplaceNulls,
		ReplaceEntities: o.ReplaceEntities,
	}
}

func (o Options) normalizer() tabular.Normalizer {
	if o.Normalizer != nil {
		return o.Normalizer
	}
	return tabular.NewNormalizer(o.Logger)
}

func (o Options) sorter() tabular.Sorter {
	if o.Sorter != nil {
		return o.Sorter
	}
	if o.SortBackend == SortBackendSQLite {
		return tabular.NewSQLiteSorter(o.TempDir, o.Logger)
	}
	sorter := tabular.NewMergeSorter(o.SortRunSize, o.TempDir, o.Logger)
	sorter.Memory = tabular.NewMemoryLimit(o.SortMemoryLimitMB)
	return sorter
}

func (o Options) prepareConcurrency() int {
	if o.PrepareConcurrency <= 0 {
		return DefaultPrepareConcurrency
	}
	return o.PrepareConcurrency
}

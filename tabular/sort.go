package tabular

import (
	"bufio"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/nao1215/dwca/domain/model"
)

const (
	// DefaultRunSize is the number of rows sorted in memory before a run is
	// spilled to disk
	DefaultRunSize = 100_000
	// maxLineSize bounds a single canonical line read back from a run
	maxLineSize = 64 * 1024 * 1024
)

// Sorter sorts the rows of one or more inputs by a column and writes them,
// in the canonical dialect and without header rows, to output. Rows must
// be ordered with model.CompareIDs and rows with equal keys must keep
// their input order.
type Sorter interface {
	SortByColumn(ctx context.Context, inputs []string, output string, d model.Dialect, column int) error
}

// MergeSorter is an external merge sort: rows are cut into runs of RunSize,
// each run is sorted in memory and spilled to a temporary file, and the runs
// are merged with a heap.
type MergeSorter struct {
	// RunSize is the number of rows per run; DefaultRunSize when zero
	RunSize int
	// TempDir holds the runs; the output directory when empty
	TempDir string
	// Logger receives warnings about dropped rows; slog.Default() when nil
	Logger *slog.Logger
	// Memory spills a run early once the heap reaches it; nil disables it
	Memory *MemoryLimit
}

// NewMergeSorter creates a MergeSorter.
func NewMergeSorter(runSize int, tempDir string, logger *slog.Logger) *MergeSorter {
	return &MergeSorter{RunSize: runSize, TempDir: tempDir, Logger: logger}
}

// sortLine is one canonical line and its sort key.
type sortLine struct {
	key  string
	line string
}

func compareLines(a, b sortLine) int {
	return model.CompareIDs(a.key, b.key)
}

// SortByColumn implements Sorter.
func (s *MergeSorter) SortByColumn(ctx context.Context, inputs []string, output string, d model.Dialect, column int) (err error) {
	runSize := s.RunSize
	if runSize <= 0 {
		runSize = DefaultRunSize
	}
	tempDir := s.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(output)
	}

	var runs []string
	defer func() {
		for _, run := range runs {
			_ = os.Remove(run)
		}
	}()

	buf := make([]sortLine, 0, min(runSize, 4096))
	spill := func() error {
		slices.SortStableFunc(buf, compareLines)
		run, err := writeRun(tempDir, buf)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		clear(buf)
		buf = buf[:0]
		return nil
	}

	log := logger(s.Logger)
	err = eachRow(ctx, inputs, d, log, func(fields []string) error {
		line := CanonicalLine(fields)
		buf = append(buf, sortLine{key: columnAt(fields, column), line: line})
		if len(buf) >= runSize {
			return spill()
		}
		if s.Memory != nil && len(buf)%memoryCheckInterval == 0 &&
			s.Memory.CheckMemoryUsage() == MemoryStatusExceeded {
			log.Debug("spilling sort run early", "rows", len(buf), "limit_mb", s.Memory.LimitMB())
			return spill()
		}
		return nil
	})
	if err != nil {
		return err
	}

	out, err := createAtomic(output)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Abort()
		}
	}()

	if len(runs) == 0 {
		slices.SortStableFunc(buf, compareLines)
		for _, l := range buf {
			if err := out.writeLine(l.line); err != nil {
				return err
			}
		}
		return out.Commit()
	}
	if len(buf) > 0 {
		if err := spill(); err != nil {
			return err
		}
	}
	if err := mergeRuns(ctx, runs, column, out); err != nil {
		return err
	}
	return out.Commit()
}

// eachRow streams the data rows of every input in order. Malformed rows are
// logged and skipped.
func eachRow(ctx context.Context, inputs []string, d model.Dialect, log *slog.Logger, fn func([]string) error) error {
	var rows int64
	for _, input := range inputs {
		if err := func() (err error) {
			in, err := Open(input, d)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, in.Close())
			}()
			for {
				fields, err := in.Read()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					if IsRowError(err) {
						log.Warn("skipping malformed row", "file", input, "error", err)
						continue
					}
					return fmt.Errorf("failed to read %s: %w", input, err)
				}
				if err := fn(fields); err != nil {
					return err
				}
				rows++
				if rows%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
			}
		}(); err != nil {
			return err
		}
	}
	return nil
}

// writeRun spills a sorted run to a temporary file.
func writeRun(dir string, lines []sortLine) (path string, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "run-*")
	if err != nil {
		return "", fmt.Errorf("failed to create run file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	w := bufio.NewWriterSize(f, readBufferSize)
	for _, l := range lines {
		if _, err := w.WriteString(l.line); err != nil {
			return "", err
		}
		if err := w.WriteByte('\n'); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// runCursor is the head of one run during the merge.
type runCursor struct {
	scanner *bufio.Scanner
	file    *os.File
	order   int
	head    sortLine
}

func (c *runCursor) advance(column int) bool {
	if !c.scanner.Scan() {
		return false
	}
	line := c.scanner.Text()
	c.head = sortLine{key: keyOfLine(line, column), line: line}
	return true
}

// runHeap orders run heads by key, then by run order so equal keys keep
// their input order.
type runHeap []*runCursor

func (h runHeap) Len() int { return len(h) }
func (h runHeap) Less(i, j int) bool {
	if c := compareLines(h[i].head, h[j].head); c != 0 {
		return c < 0
	}
	return h[i].order < h[j].order
}
func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)   { *h = append(*h, x.(*runCursor)) }
func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

func mergeRuns(ctx context.Context, runs []string, column int, out *atomicFile) (err error) {
	cursors := make([]*runCursor, 0, len(runs))
	defer func() {
		for _, c := range cursors {
			_ = c.file.Close()
		}
	}()

	h := make(runHeap, 0, len(runs))
	for i, run := range runs {
		f, err := os.Open(run) //nolint:gosec // temporary run file
		if err != nil {
			return fmt.Errorf("failed to open run: %w", err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, readBufferSize), maxLineSize)
		c := &runCursor{scanner: sc, file: f, order: i}
		cursors = append(cursors, c)
		if c.advance(column) {
			h = append(h, c)
		} else if err := sc.Err(); err != nil {
			return fmt.Errorf("failed to read run: %w", err)
		}
	}
	heap.Init(&h)

	var lines int64
	for h.Len() > 0 {
		c := h[0]
		if err := out.writeLine(c.head.line); err != nil {
			return err
		}
		if c.advance(column) {
			heap.Fix(&h, 0)
		} else {
			if err := c.scanner.Err(); err != nil {
				return fmt.Errorf("failed to read run: %w", err)
			}
			heap.Pop(&h)
		}
		lines++
		if lines%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

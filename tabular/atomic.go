package tabular

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// atomicFile writes to a temporary sibling and renames it over the target
// on Commit, so readers never observe a half written file.
type atomicFile struct {
	*bufio.Writer
	file    *os.File
	path    string
	tmpPath string
	done    bool
}

func createAtomic(path string) (*atomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := path + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 10)
	f, err := os.Create(tmpPath) //nolint:gosec // derived from archive locations
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &atomicFile{
		Writer:  bufio.NewWriterSize(f, readBufferSize),
		file:    f,
		path:    path,
		tmpPath: tmpPath,
	}, nil
}

// writeLine writes s followed by the canonical terminator.
func (a *atomicFile) writeLine(s string) error {
	if _, err := a.WriteString(s); err != nil {
		return err
	}
	return a.WriteByte('\n')
}

// Commit flushes, syncs and renames the file into place.
func (a *atomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true
	err := a.Flush()
	if err == nil {
		err = a.file.Sync()
	}
	if closeErr := a.file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(a.tmpPath, a.path)
	}
	if err != nil {
		_ = os.Remove(a.tmpPath)
		return fmt.Errorf("failed to write %s: %w", a.path, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (a *atomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	return errors.Join(a.file.Close(), os.Remove(a.tmpPath))
}

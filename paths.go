package dwca

import (
	"fmt"
	"path/filepath"

	"github.com/nao1215/dwca/domain/model"
	"github.com/zeebo/xxh3"
)

// Derivative file suffixes appended to the source file name.
const (
	SortedSuffix     = "-sorted"
	NormalizedSuffix = "-normalized"
	LockSuffix       = "-lock"
)

// derivatives are the files preparation reads and writes for one
// descriptor.
type derivatives struct {
	sorted     string
	lock       string
	normalized []string
}

// derivativePath places name+suffix next to source, or under a namespace
// of workDir derived from the source directory.
func derivativePath(workDir, source, suffix string) (string, error) {
	name := filepath.Base(source) + suffix
	if workDir == "" {
		return filepath.Join(filepath.Dir(source), name), nil
	}
	abs, err := filepath.Abs(filepath.Dir(source))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", source, err)
	}
	return filepath.Join(workDir, namespace(abs), name), nil
}

// namespace names the work directory subfolder of one source directory.
func namespace(dir string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(filepath.Clean(dir)))
}

func derivativesOf(workDir string, fd *model.FileDescriptor) (derivatives, error) {
	var d derivatives
	var err error
	first := fd.Location()
	if d.sorted, err = derivativePath(workDir, first, SortedSuffix); err != nil {
		return d, err
	}
	if d.lock, err = derivativePath(workDir, first, LockSuffix); err != nil {
		return d, err
	}
	for _, loc := range fd.Locations() {
		p, err := derivativePath(workDir, loc, NormalizedSuffix)
		if err != nil {
			return d, err
		}
		d.normalized = append(d.normalized, p)
	}
	return d, nil
}

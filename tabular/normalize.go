package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/dwca/domain/model"
)

// ctxCheckInterval is how many rows are processed between context checks.
const ctxCheckInterval = 4096

// Normalizer rewrites a file in any dialect into the canonical dialect:
// UTF-8, tab separated, "\n" terminated and unquoted. Header rows are kept
// so the sort step can skip them.
type Normalizer interface {
	Normalize(ctx context.Context, input, output string, d model.Dialect) error
}

// DialectNormalizer is the default Normalizer.
type DialectNormalizer struct {
	// Logger receives warnings about dropped rows; slog.Default() when nil
	Logger *slog.Logger
}

// NewNormalizer creates a DialectNormalizer.
func NewNormalizer(logger *slog.Logger) *DialectNormalizer {
	return &DialectNormalizer{Logger: logger}
}

// Normalize implements Normalizer.
func (n *DialectNormalizer) Normalize(ctx context.Context, input, output string, d model.Dialect) (err error) {
	in, err := Open(input, d.WithHeaderLines(0))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, in.Close())
	}()

	out, err := createAtomic(output)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Abort()
		}
	}()

	var rows int64
	for {
		fields, readErr := in.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if IsRowError(readErr) {
				logger(n.Logger).Warn("skipping malformed row", "file", input, "error", readErr)
				continue
			}
			return fmt.Errorf("failed to read %s: %w", input, readErr)
		}
		if err := out.writeLine(CanonicalLine(fields)); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		rows++
		if rows%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	return out.Commit()
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

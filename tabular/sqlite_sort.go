package tabular

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/dwca/domain/model"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultBatchSize is the number of rows inserted per transaction by the
// SQLiteSorter.
const DefaultBatchSize = 10_000

// SQLiteSorter sorts through a scratch SQLite database. It trades speed for
// a bounded memory footprint that does not depend on row width.
type SQLiteSorter struct {
	// TempDir holds the scratch database; the output directory when empty
	TempDir string
	// BatchSize is the number of rows per insert transaction
	BatchSize int
	// Logger receives warnings about dropped rows; slog.Default() when nil
	Logger *slog.Logger
}

// NewSQLiteSorter creates a SQLiteSorter.
func NewSQLiteSorter(tempDir string, logger *slog.Logger) *SQLiteSorter {
	return &SQLiteSorter{TempDir: tempDir, BatchSize: DefaultBatchSize, Logger: logger}
}

// SortByColumn implements Sorter. BINARY collation orders keys bytewise,
// the same order as model.CompareIDs; seq keeps equal keys in input order.
func (s *SQLiteSorter) SortByColumn(ctx context.Context, inputs []string, output string, d model.Dialect, column int) (err error) {
	tempDir := s.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(output)
	}
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return fmt.Errorf("failed to create sort directory: %w", err)
	}
	scratch, err := os.CreateTemp(tempDir, "sort-*.db")
	if err != nil {
		return fmt.Errorf("failed to create sort database: %w", err)
	}
	dbPath := scratch.Name()
	_ = scratch.Close()
	defer func() {
		_ = os.Remove(dbPath)
	}()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open sort database: %w", err)
	}
	defer func() {
		err = errors.Join(err, db.Close())
	}()
	db.SetMaxOpenConns(1)

	for _, q := range []string{
		`PRAGMA journal_mode=OFF`,
		`PRAGMA synchronous=OFF`,
		`CREATE TABLE lines (seq INTEGER PRIMARY KEY, k TEXT NOT NULL, line TEXT NOT NULL)`,
	} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to prepare sort database: %w", err)
		}
	}

	if err := s.load(ctx, db, inputs, d, column, batchSize); err != nil {
		return err
	}
	return s.unload(ctx, db, output)
}

// load inserts every row in batches of batchSize.
func (s *SQLiteSorter) load(ctx context.Context, db *sql.DB, inputs []string, d model.Dialect, column, batchSize int) (err error) {
	var (
		tx      *sql.Tx
		stmt    *sql.Stmt
		pending int
	)
	begin := func() error {
		var err error
		if tx, err = db.BeginTx(ctx, nil); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if stmt, err = tx.PrepareContext(ctx, `INSERT INTO lines (k, line) VALUES (?, ?)`); err != nil { //nolint:sqlclosecheck // closed in commit
			_ = tx.Rollback()
			tx = nil
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		return nil
	}
	commit := func() error {
		_ = stmt.Close()
		err := tx.Commit()
		tx, stmt, pending = nil, nil, 0
		if err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}
	defer func() {
		if tx != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
		}
	}()

	err = eachRow(ctx, inputs, d, logger(s.Logger), func(fields []string) error {
		if tx == nil {
			if err := begin(); err != nil {
				return err
			}
		}
		line := CanonicalLine(fields)
		if _, err := stmt.ExecContext(ctx, columnAt(fields, column), line); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
		pending++
		if pending >= batchSize {
			return commit()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if tx != nil {
		return commit()
	}
	return nil
}

// unload streams the sorted rows into output.
func (s *SQLiteSorter) unload(ctx context.Context, db *sql.DB, output string) (err error) {
	out, err := createAtomic(output)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Abort()
		}
	}()

	rows, err := db.QueryContext(ctx, `SELECT line FROM lines ORDER BY k COLLATE BINARY, seq`)
	if err != nil {
		return fmt.Errorf("failed to query sorted rows: %w", err)
	}
	defer rows.Close()

	var line string
	for rows.Next() {
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("failed to scan sorted row: %w", err)
		}
		if err := out.writeLine(line); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read sorted rows: %w", err)
	}
	return out.Commit()
}

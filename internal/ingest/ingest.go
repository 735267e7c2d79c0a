// Package ingest loads documents into the knowledge base. Files are split
// into paragraph chunks, embedded and stored; a ledger keyed by file name and
// size skips files that were already imported.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// DocumentStore is the write surface of the knowledge base.
type DocumentStore interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string, collection string) (string, bool)
}

var importExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

type Importer struct {
	db         *sql.DB
	docs       DocumentStore
	collection string
	watchDir   string
	logger     *slog.Logger
}

// NewImporter opens the import ledger at dbPath. watchDir is the directory
// swept by Process; empty disables sweeping.
func NewImporter(dbPath string, docs DocumentStore, collection, watchDir string, logger *slog.Logger) (*Importer, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS imported_files (
			name        TEXT NOT NULL,
			size        INTEGER NOT NULL,
			chunks      INTEGER NOT NULL DEFAULT 0,
			imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (name, size)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &Importer{
		db:         db,
		docs:       docs,
		collection: collection,
		watchDir:   watchDir,
		logger:     logger.With("component", "ingest"),
	}, nil
}

func (i *Importer) Close() error {
	return i.db.Close()
}

// SplitParagraphs breaks text into chunks on blank lines. Whitespace-only
// chunks are dropped.
func SplitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	var chunks []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			chunks = append(chunks, block)
		}
	}
	return chunks
}

func (i *Importer) alreadyImported(name string, size int64) (bool, error) {
	var one int
	err := i.db.QueryRow(`SELECT 1 FROM imported_files WHERE name = ? AND size = ?`, name, size).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", name, err)
	}
	return true, nil
}

func (i *Importer) recordImport(name string, size int64, chunks int) error {
	_, err := i.db.Exec(`
		INSERT INTO imported_files (name, size, chunks) VALUES (?, ?, ?)
		ON CONFLICT(name, size) DO UPDATE SET chunks = excluded.chunks, imported_at = CURRENT_TIMESTAMP`,
		name, size, chunks)
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", name, err)
	}
	return nil
}

// ImportFile ingests one file. It returns the number of chunks stored, zero
// when the file was already imported with the same size.
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory, use ImportDir", path)
	}

	name := filepath.Base(path)
	done, err := i.alreadyImported(name, info.Size())
	if err != nil {
		return 0, err
	}
	if done {
		i.logger.Debug("file already imported", "file", name)
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	chunks := SplitParagraphs(string(data))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%s has no content to import", name)
	}

	stored := 0
	for idx, chunk := range chunks {
		metadata := map[string]string{
			"source": name,
			"chunk":  strconv.Itoa(idx),
		}
		if _, ok := i.docs.AddDocument(ctx, chunk, metadata, i.collection); !ok {
			return stored, fmt.Errorf("store chunk %d of %s failed", idx, name)
		}
		stored++
	}

	if err := i.recordImport(name, info.Size(), stored); err != nil {
		return stored, err
	}
	i.logger.Info("file imported", "file", name, "chunks", stored)
	return stored, nil
}

// ImportDir ingests every .txt and .md file directly under dir. A file that
// fails is logged and skipped; the sweep continues.
func (i *Importer) ImportDir(ctx context.Context, dir string) (files, chunks int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !importExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		n, err := i.ImportFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			i.logger.Error("import failed", "file", entry.Name(), "error", err)
			continue
		}
		if n > 0 {
			files++
			chunks += n
		}
	}
	return files, chunks, nil
}

// ImportPath ingests a file or a directory, whichever path points at.
func (i *Importer) ImportPath(ctx context.Context, path string) (files, chunks int, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return i.ImportDir(ctx, path)
	}
	n, err := i.ImportFile(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	if n > 0 {
		files = 1
	}
	return files, n, nil
}

// Process sweeps the watch directory once. It satisfies the dashboard's
// on-demand document processing endpoint.
func (i *Importer) Process(ctx context.Context) (int, error) {
	if i.watchDir == "" {
		return 0, fmt.Errorf("nenhum diretório de documentos configurado")
	}
	if _, err := os.Stat(i.watchDir); err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("diretório %s não existe", i.watchDir)
		}
		return 0, err
	}
	_, chunks, err := i.ImportDir(ctx, i.watchDir)
	return chunks, err
}

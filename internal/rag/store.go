package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Hit is one nearest-neighbor result. Lower distance means more similar.
type Hit struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// Store keeps documents and their embeddings in named SQLite collections.
// Collections are independent namespaces created lazily on first write.
//
// The error policy follows the chat surface this store serves: failures are
// logged and collapsed into absent results (ok=false, empty slices, zero
// counts), so callers cannot distinguish "no matches" from "service failure".
type Store struct {
	db                *sql.DB
	embedder          Embedder
	defaultCollection string
	logger            *slog.Logger
}

func Open(dbPath, defaultCollection string, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create rag db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open rag sqlite: %w", err)
	}

	s := &Store{
		db:                db,
		embedder:          embedder,
		defaultCollection: defaultCollection,
		logger:            logger.With("component", "rag"),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA journal_mode=WAL;
	PRAGMA busy_timeout=5000;

	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		content    TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		embedding  BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection) REFERENCES collections(name)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init rag schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) collectionName(collection string) string {
	if collection == "" {
		return s.defaultCollection
	}
	return collection
}

func (s *Store) ensureCollection(name string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO collections (name) VALUES (?)`, name)
	return err
}

// AddDocument embeds text and stores it under a fresh id in the named
// collection (default collection when empty). Returns ok=false on any
// failure; the caller must treat absence as "not stored".
func (s *Store) AddDocument(ctx context.Context, text string, metadata map[string]string, collection string) (string, bool) {
	name := s.collectionName(collection)

	if err := s.ensureCollection(name); err != nil {
		s.logger.Error("create collection failed", "collection", name, "error", err)
		return "", false
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Error("embed document failed", "error", err)
		return "", false
	}
	blob, err := encodeVector(vector)
	if err != nil {
		s.logger.Error("encode embedding failed", "error", err)
		return "", false
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		s.logger.Error("marshal metadata failed", "error", err)
		return "", false
	}

	docID := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO documents (id, collection, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		docID, name, text, string(metaJSON), blob, time.Now().UTC())
	if err != nil {
		s.logger.Error("insert document failed", "collection", name, "error", err)
		return "", false
	}

	return docID, true
}

// SearchSimilar embeds the query and brute-force scans the collection,
// returning up to k hits ordered by increasing distance. Any failure yields
// an empty slice.
func (s *Store) SearchSimilar(ctx context.Context, query string, k int, collection string) []Hit {
	name := s.collectionName(collection)

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("embed query failed", "error", err)
		return nil
	}

	rows, err := s.db.Query(`SELECT content, metadata, embedding FROM documents WHERE collection = ?`, name)
	if err != nil {
		s.logger.Error("query documents failed", "collection", name, "error", err)
		return nil
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var content, metaJSON string
		var blob []byte
		if err := rows.Scan(&content, &metaJSON, &blob); err != nil {
			s.logger.Error("scan document failed", "error", err)
			return nil
		}

		vector, err := decodeVector(blob)
		if err != nil {
			s.logger.Error("decode embedding failed", "error", err)
			continue
		}
		distance, err := cosineDistance(queryVec, vector)
		if err != nil {
			s.logger.Error("distance failed", "error", err)
			continue
		}

		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			metadata = map[string]string{}
		}

		hits = append(hits, Hit{Text: content, Metadata: metadata, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate documents failed", "error", err)
		return nil
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// CountDocuments returns the number of documents in the collection, zero on
// failure or when the collection does not exist.
func (s *Store) CountDocuments(collection string) int64 {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ?`,
		s.collectionName(collection)).Scan(&count)
	if err != nil {
		s.logger.Error("count documents failed", "error", err)
		return 0
	}
	return count
}

func (s *Store) ListCollections() []string {
	rows, err := s.db.Query(`SELECT name FROM collections ORDER BY name`)
	if err != nil {
		s.logger.Error("list collections failed", "error", err)
		return nil
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			s.logger.Error("scan collection failed", "error", err)
			return nil
		}
		names = append(names, name)
	}
	return names
}

// DeleteAllDocuments drops the whole collection and everything in it.
// Irrecoverable. Returns false on failure.
func (s *Store) DeleteAllDocuments(collection string) bool {
	name := s.collectionName(collection)

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin collection drop failed", "error", err)
		return false
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE collection = ?`, name); err != nil {
		s.logger.Error("delete documents failed", "collection", name, "error", err)
		return false
	}
	if _, err := tx.Exec(`DELETE FROM collections WHERE name = ?`, name); err != nil {
		s.logger.Error("delete collection failed", "collection", name, "error", err)
		return false
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit collection drop failed", "error", err)
		return false
	}

	s.logger.Info("collection dropped", "collection", name)
	return true
}


package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/hinto/internal/models"
	"github.com/hyperjump/hinto/internal/vector"
)

// Valid table namespaces: identifier-safe, since they are spliced into DDL.
var namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore implements Store on a single SQLite file. The namespace
// prefixes every table so multiple logical collections can share one file.
type SQLiteStore struct {
	db        *sql.DB
	documents string
	vectors   string
	state     string
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema for namespace. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, namespace string) (*SQLiteStore, error) {
	if !namespacePattern.MatchString(namespace) {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		documents: namespace + "_documents",
		vectors:   namespace + "_vectors",
		state:     namespace + "_embedder_state",
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		doc_id INTEGER PRIMARY KEY,
		vector BLOB NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES %[1]s(id)
	);

	CREATE TABLE IF NOT EXISTS %[3]s (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state BLOB,
		is_fitted INTEGER NOT NULL DEFAULT 0
	);
	`, s.documents, s.vectors, s.state)
	_, err := s.db.Exec(schema)
	return err
}

// InsertBatch inserts document+vector pairs in one transaction.
func (s *SQLiteStore) InsertBatch(ctx context.Context, docs []*models.DocumentInput, vectors [][]float32) ([]int64, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("documents and vectors length mismatch: %d vs %d", len(docs), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	docStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (content, metadata) VALUES (?, ?)`, s.documents))
	if err != nil {
		return nil, err
	}
	defer docStmt.Close()
	vecStmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (doc_id, vector) VALUES (?, ?)`, s.vectors))
	if err != nil {
		return nil, err
	}
	defer vecStmt.Close()

	ids := make([]int64, 0, len(docs))
	for i, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		res, err := docStmt.ExecContext(ctx, doc.Content, string(metadataJSON))
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		if _, err := vecStmt.ExecContext(ctx, id, vector.Encode(vectors[i])); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return ids, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	var metadataJSON string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, content, metadata FROM %s WHERE id = ?`, s.documents), id,
	).Scan(&doc.ID, &doc.Content, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &doc, nil
}

// AllDocuments returns all documents ordered by ascending ID.
func (s *SQLiteStore) AllDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, content, metadata FROM %s ORDER BY id`, s.documents))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var metadataJSON string
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// AllVectors returns all (id, vector) pairs ordered by ascending ID.
func (s *SQLiteStore) AllVectors(ctx context.Context) ([]int64, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc_id, vector FROM %s ORDER BY doc_id`, s.vectors))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []int64
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, err
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("vector for document %d: %w", id, err)
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
	}
	return ids, vecs, rows.Err()
}

// UpdateVectors overwrites vectors in one transaction.
func (s *SQLiteStore) UpdateVectors(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`UPDATE %s SET vector = ? WHERE doc_id = ?`, s.vectors))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range ids {
		res, err := stmt.ExecContext(ctx, vector.Encode(vectors[i]), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("vector for document %d: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

// LoadEmbedderState returns the single-slot embedder state.
func (s *SQLiteStore) LoadEmbedderState(ctx context.Context) ([]byte, bool, error) {
	var state []byte
	var fitted int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT state, is_fitted FROM %s WHERE id = 1`, s.state),
	).Scan(&state, &fitted)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return state, fitted != 0, nil
}

// SaveEmbedderState overwrites the single-slot embedder state.
func (s *SQLiteStore) SaveEmbedderState(ctx context.Context, state []byte, fitted bool) error {
	fittedInt := 0
	if fitted {
		fittedInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, state, is_fitted) VALUES (1, ?, ?)`, s.state),
		state, fittedInt)
	return err
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.documents)).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

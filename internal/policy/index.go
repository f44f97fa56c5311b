// Package policy provides the policy-document vector index and the
// retrieval tool built on it.
package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soferos/govpulse/internal/embeddings"
)

// ErrNotBuilt is returned when the index contains no chunks. This is
// a setup problem ("run ingestion first"), not a transient failure,
// and callers render it as a distinct user-facing message.
var ErrNotBuilt = errors.New("policy index not built")

// Embedder turns text into a vector in the index's embedding space.
// Queries and stored chunks must use the same model.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Chunk is one embedded span of a policy document. Immutable after
// the index is built.
type Chunk struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// Index stores policy chunks with their embeddings in SQLite and
// answers nearest-neighbor queries. Query paths are read-only, so a
// single Index is safe for concurrent readers.
type Index struct {
	db       *sql.DB
	embedder Embedder
}

// Open creates an index backed by the SQLite file at path.
func Open(path string, embedder Embedder) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	idx := &Index{db: db, embedder: embedder}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

// OpenWithDB creates an index using an existing database connection.
func OpenWithDB(db *sql.DB, embedder Embedder) (*Index, error) {
	idx := &Index{db: db, embedder: embedder}
	if err := idx.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	_, err := i.db.Exec(`
		CREATE TABLE IF NOT EXISTS policy_chunks (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_policy_source ON policy_chunks(source);
	`)
	return err
}

// Close closes the database connection.
func (i *Index) Close() error {
	return i.db.Close()
}

// Add embeds text and persists it as a chunk. Used by the offline
// ingestion path only.
func (i *Index) Add(ctx context.Context, source, text string) error {
	emb, err := i.embedder.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("embed chunk: %w", err)
	}

	embJSON, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	id, _ := uuid.NewV7()
	_, err = i.db.ExecContext(ctx, `
		INSERT INTO policy_chunks (id, source, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), source, text, string(embJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Clear removes all chunks for a source, so a document can be
// re-ingested without duplicates.
func (i *Index) Clear(ctx context.Context, source string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM policy_chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("clear source: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policy_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Search embeds the query and returns the k most similar chunks by
// cosine similarity, best first. Returns ErrNotBuilt when the index
// holds no chunks.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	chunks, err := i.all(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotBuilt
	}

	queryEmb, err := i.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors := make([][]float32, len(chunks))
	for idx, c := range chunks {
		vectors[idx] = c.Embedding
	}

	var results []Chunk
	for _, idx := range embeddings.TopK(queryEmb, vectors, k) {
		results = append(results, chunks[idx])
	}
	return results, nil
}

// all loads every chunk with its embedding. The policy corpus is
// small (hundreds of chunks), so a full scan per query is fine.
func (i *Index) all(ctx context.Context) ([]Chunk, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT id, source, text, embedding FROM policy_chunks ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var idStr, embJSON string
		if err := rows.Scan(&idStr, &c.Source, &c.Text, &embJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.ID, _ = uuid.Parse(idStr)
		if err := json.Unmarshal([]byte(embJSON), &c.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

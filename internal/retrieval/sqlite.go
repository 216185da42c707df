package retrieval

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/config"
)

const clauseTable = "contract_clauses"

// SQLiteIndex keeps reference clauses and their embeddings in one sqlite
// table and ranks them by cosine similarity at query time.
type SQLiteIndex struct {
	db       *sql.DB
	embedder Embedder
}

var _ Index = (*SQLiteIndex)(nil)

func NewSQLiteIndex(db *sql.DB, embedder Embedder) *SQLiteIndex {
	return &SQLiteIndex{db: db, embedder: embedder}
}

// Open opens an existing index file and wraps it in a Retriever. A missing
// file, a database that cannot be opened or a missing clause table all
// return an *UnavailableError.
func Open(cfg config.RetrievalConfig, embedder Embedder, l *zap.Logger) (*Retriever, error) {
	if cfg.IndexPath == "" {
		return nil, &UnavailableError{Reason: "no index path configured"}
	}
	if _, err := os.Stat(cfg.IndexPath); err != nil {
		return nil, &UnavailableError{Path: cfg.IndexPath, Reason: "index file not found", Err: err}
	}

	if embedder == nil {
		var err error
		embedder, err = NewEmbedder(cfg)
		if err != nil {
			return nil, &UnavailableError{Path: cfg.IndexPath, Err: err}
		}
	}

	db, err := sql.Open("sqlite3", "file:"+cfg.IndexPath+"?mode=ro")
	if err != nil {
		return nil, &UnavailableError{Path: cfg.IndexPath, Reason: "open index", Err: err}
	}

	idx := NewSQLiteIndex(db, embedder)
	ok, err := idx.hasTable(context.Background())
	if err != nil {
		db.Close()
		return nil, &UnavailableError{Path: cfg.IndexPath, Reason: "open index", Err: err}
	}
	if !ok {
		db.Close()
		return nil, &UnavailableError{Path: cfg.IndexPath, Reason: "table " + clauseTable + " not found"}
	}

	return New(idx, l)
}

// EnsureSchema creates the clause table when it does not exist.
func (s *SQLiteIndex) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+clauseTable+` (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL
	)`)
	return err
}

func (s *SQLiteIndex) hasTable(ctx context.Context) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", clauseTable).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert embeds text and stores it under id, replacing any previous row.
func (s *SQLiteIndex) Upsert(ctx context.Context, id, text string, metadata map[string]any) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed clause %s: %w", id, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+clauseTable+` (id, text, embedding, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, embedding = excluded.embedding, metadata = excluded.metadata`,
		id, text, encodeVector(vec), string(meta))
	return err
}

// Count returns the number of indexed clauses.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+clauseTable).Scan(&n)
	return n, err
}

// Query scores every stored clause against text and returns the topK best,
// highest score first. Rows keep insertion order on ties.
func (s *SQLiteIndex) Query(ctx context.Context, text string, topK int) ([]Candidate, error) {
	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT text, embedding, metadata FROM "+clauseTable+" ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			clause string
			blob   []byte
			meta   string
		)
		if err := rows.Scan(&clause, &blob, &meta); err != nil {
			return nil, err
		}

		vec, err := decodeVector(blob)
		if err != nil {
			continue
		}
		metadata := map[string]any{}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
				metadata = map[string]any{}
			}
		}

		candidates = append(candidates, Candidate{
			Text:     clause,
			Score:    cosineSimilarity(query, vec),
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Descending; NaN scores sort last.
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// encodeVector stores a vector as little-endian float32 values.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("embedding blob has a non-finite value at %d", i)
		}
		vec[i] = v
	}
	return vec, nil
}

// Package vectorstore keeps namespaced vector records in libSQL and serves
// similarity queries over them. Each CMS record owns at most one vector row;
// the linkage is record.vector_id on one side and metadata.recordId on the
// other, with no cross-table transaction.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/atomizerhq/atomizer/internal/database"
	"github.com/atomizerhq/atomizer/internal/embeddings"
	"github.com/atomizerhq/atomizer/internal/metrics"
)

// ErrNoProvider is returned when no embeddings provider is configured.
// Callers treat it like any other best-effort embed failure.
var ErrNoProvider = errors.New("no embeddings provider configured")

// Metadata is the free-form payload carried with each vector record.
type Metadata struct {
	RecordID    string   `json:"recordId"`
	Type        string   `json:"type"`
	ParentAtoms []string `json:"parentAtoms,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// Record is a stored vector with its metadata.
type Record struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Vector    []float32 `json:"vector"`
	Metadata  Metadata  `json:"metadata"`
}

// Match is a query result; Distance is the cosine distance to the query
// vector (smaller is more similar).
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Store wraps the shared database handle with vector operations.
type Store struct {
	dm       *database.DBManager
	provider embeddings.Provider
}

// NewStore creates a vector store over the shared database. provider may be
// nil, in which case Upsert returns ErrNoProvider.
func NewStore(dm *database.DBManager, provider embeddings.Provider) *Store {
	return &Store{dm: dm, provider: provider}
}

// Provider reports the configured embeddings provider (nil when disabled).
func (s *Store) Provider() embeddings.Provider { return s.provider }

// Upsert embeds text and writes the vector record. A duplicate id silently
// replaces the previous row. Returns the record id (generated when empty).
func (s *Store) Upsert(ctx context.Context, namespace, id, text string, md Metadata) (string, error) {
	done := metrics.TimeOp("vector_upsert")
	success := false
	defer func() { done(success) }()

	if s.provider == nil {
		return "", ErrNoProvider
	}
	if id == "" {
		id = uuid.NewString()
	}

	vecs, err := s.provider.Embed(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("embedding failed: %w", err)
	}
	if len(vecs) != 1 {
		return "", fmt.Errorf("provider returned %d embeddings for one input", len(vecs))
	}

	vectorString, err := s.vectorToString(vecs[0])
	if err != nil {
		return "", fmt.Errorf("failed to convert embedding: %w", err)
	}
	metaJSON, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.dm.Handle().ExecContext(ctx, `INSERT INTO vectors (id, namespace, embedding, metadata)
        VALUES (?, ?, vector32(?), ?)
        ON CONFLICT(id) DO UPDATE SET namespace = excluded.namespace,
            embedding = excluded.embedding, metadata = excluded.metadata`,
		id, namespace, vectorString, string(metaJSON))
	if err != nil {
		return "", fmt.Errorf("failed to upsert vector: %w", err)
	}
	success = true
	return id, nil
}

// Query returns up to topK matches in a namespace ordered by ascending
// cosine distance. typeFilter scopes by metadata.type when non-empty;
// excludeID drops one record (typically the query vector's own row).
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, typeFilter, excludeID string) ([]Match, error) {
	done := metrics.TimeOp("vector_query")
	success := false
	defer func() { done(success) }()

	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	vectorString, err := s.vectorToString(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to convert query vector: %w", err)
	}

	query := `SELECT id, namespace, embedding, metadata,
            vector_distance_cos(embedding, vector32(?)) as distance
        FROM vectors
        WHERE namespace = ? AND embedding IS NOT NULL`
	args := []any{vectorString, namespace}
	if typeFilter != "" {
		query += ` AND json_extract(metadata, '$.type') = ?`
		args = append(args, typeFilter)
	}
	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, topK)

	stmt, err := s.dm.PreparedStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var embeddingBytes []byte
		var metaJSON string
		if err := rows.Scan(&m.ID, &m.Namespace, &embeddingBytes, &metaJSON, &m.Distance); err != nil {
			log.Printf("Warning: failed to scan match row: %v", err)
			continue
		}
		vec, err := s.extractVector(embeddingBytes)
		if err != nil {
			log.Printf("Warning: failed to extract vector for %q: %v", m.ID, err)
			continue
		}
		m.Vector = vec
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			log.Printf("Warning: failed to decode metadata for %q: %v", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}
	success = true
	return matches, nil
}

// QueryByID reuses a stored vector's nearest neighbors, excluding itself.
func (s *Store) QueryByID(ctx context.Context, namespace, id string, topK int, typeFilter string) ([]Match, error) {
	recs, err := s.Fetch(ctx, namespace, []string{id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("vector not found: %s", id)
	}
	return s.Query(ctx, namespace, recs[0].Vector, topK, typeFilter, id)
}

// Fetch retrieves records by id within a namespace. Missing ids are simply
// absent from the result.
func (s *Store) Fetch(ctx context.Context, namespace string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.dm.Handle().QueryContext(ctx, fmt.Sprintf(
		`SELECT id, namespace, embedding, metadata FROM vectors
         WHERE namespace = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vectors: %w", err)
	}
	defer rows.Close()

	return s.collectRecords(rows)
}

// List scans a namespace up to limit rows. libSQL gives a real table scan,
// so unlike a dummy-vector top-K sample this enumerates actual records.
func (s *Store) List(ctx context.Context, namespace string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.dm.Handle().QueryContext(ctx,
		`SELECT id, namespace, embedding, metadata FROM vectors
         WHERE namespace = ? ORDER BY created_at ASC LIMIT ?`, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}
	defer rows.Close()

	return s.collectRecords(rows)
}

// Delete removes a vector record. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	done := metrics.TimeOp("vector_delete")
	success := false
	defer func() { done(success) }()

	_, err := s.dm.Handle().ExecContext(ctx,
		"DELETE FROM vectors WHERE namespace = ? AND id = ?", namespace, id)
	if err != nil {
		return fmt.Errorf("failed to delete vector: %w", err)
	}
	success = true
	return nil
}

// Stats reports per-namespace record counts.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	rows, err := s.dm.Handle().QueryContext(ctx,
		"SELECT namespace, COUNT(*) FROM vectors GROUP BY namespace")
	if err != nil {
		return nil, fmt.Errorf("failed to query vector stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int64{}
	for rows.Next() {
		var ns string
		var n int64
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[ns] = n
	}
	return stats, rows.Err()
}

func (s *Store) collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var embeddingBytes []byte
		var metaJSON string
		if err := rows.Scan(&r.ID, &r.Namespace, &embeddingBytes, &metaJSON); err != nil {
			log.Printf("Warning: failed to scan vector row: %v", err)
			continue
		}
		vec, err := s.extractVector(embeddingBytes)
		if err != nil {
			log.Printf("Warning: failed to extract vector for %q: %v", r.ID, err)
			continue
		}
		r.Vector = vec
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			log.Printf("Warning: failed to decode metadata for %q: %v", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector rows: %w", err)
	}
	return records, nil
}

// vectorToString converts a float32 slice to libSQL vector text format.
func (s *Store) vectorToString(numbers []float32) (string, error) {
	dims := s.dm.Config().EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	if len(numbers) != dims {
		return "", fmt.Errorf("vector must have exactly %d dimensions, got %d", dims, len(numbers))
	}

	strNumbers := make([]string, len(numbers))
	for i, n := range numbers {
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			log.Printf("Invalid vector value detected, using 0.0 instead of: %f", n)
			n = 0
		}
		strNumbers[i] = fmt.Sprintf("%f", n)
	}
	return fmt.Sprintf("[%s]", strings.Join(strNumbers, ", ")), nil
}

// extractVector decodes the binary F32_BLOB column.
func (s *Store) extractVector(embedding []byte) ([]float32, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	dims := s.dm.Config().EmbeddingDims
	if dims <= 0 {
		dims = 4
	}
	expectedBytes := dims * 4
	if len(embedding) != expectedBytes {
		return nil, fmt.Errorf("invalid embedding size: expected %d bytes for %d-dimensional vector, got %d",
			expectedBytes, dims, len(embedding))
	}

	vector := make([]float32, dims)
	for i := 0; i < dims; i++ {
		bits := binary.LittleEndian.Uint32(embedding[i*4 : (i+1)*4])
		vector[i] = math.Float32frombits(bits)
	}
	return vector, nil
}

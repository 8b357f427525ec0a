// Package postgres implements the persistence store on PostgreSQL via
// pgx. Dense search uses the pgvector cosine distance operator, lexical
// search uses full-text ranking with websearch query parsing, and
// pattern search uses pg_trgm similarity. Schema changes ship as
// embedded versioned migrations.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.PersistenceStore = (*Store)(nil)

// Store is a PostgreSQL-based implementation of driven.PersistenceStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL with the given DSN and runs pending
// migrations. The target database needs the vector and pg_trgm
// extensions available.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, &domain.ConfigError{Field: "storage.dsn", Reason: "required for the postgres backend"}
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if err := s.migrate(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// migrate runs all pending migrations. A session advisory lock keeps
// concurrent processes from racing on schema changes.
func (s *Store) migrate(ctx context.Context, fsys embed.FS) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID) //nolint:errcheck

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

const migrationLockID = 874310

// UpsertSource inserts the source or updates the row with the same
// location, returning the stored row's id.
func (s *Store) UpsertSource(ctx context.Context, source *domain.DocumentSource) (string, error) {
	metadataJSON, err := json.Marshal(source.Metadata)
	if err != nil {
		return "", &domain.PersistenceError{Op: "upsert source", Err: fmt.Errorf("marshalling metadata: %w", err)}
	}

	id := source.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	var storedID string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO sources (id, location, document_name, document_type, content_hash,
			status, embedding_model, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (location) DO UPDATE SET
			document_name   = excluded.document_name,
			document_type   = excluded.document_type,
			content_hash    = excluded.content_hash,
			status          = excluded.status,
			embedding_model = excluded.embedding_model,
			error_message   = excluded.error_message,
			metadata        = excluded.metadata,
			updated_at      = excluded.updated_at
		RETURNING id
	`, id, source.Location, source.DocumentName, source.DocumentType, source.ContentHash,
		string(source.Status), source.EmbeddingModel, source.ErrorMessage, string(metadataJSON),
		now, now).Scan(&storedID)
	if err != nil {
		return "", &domain.PersistenceError{Op: "upsert source", Err: err}
	}
	return storedID, nil
}

const sourceColumns = `id, location, document_name, document_type, content_hash,
	status, embedding_model, error_message, metadata, created_at, updated_at`

// GetSourceByLocation retrieves a source by its location.
func (s *Store) GetSourceByLocation(ctx context.Context, location string) (*domain.DocumentSource, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE location = $1", location)
	return scanSource(row)
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.DocumentSource, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE id = $1", id)
	return scanSource(row)
}

// ListSources returns all tracked sources ordered by location.
func (s *Store) ListSources(ctx context.Context) ([]domain.DocumentSource, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+sourceColumns+" FROM sources ORDER BY location")
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list sources", Err: err}
	}
	defer rows.Close()

	var sources []domain.DocumentSource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list sources", Err: err}
	}
	return sources, nil
}

// ReplaceChunksForSource atomically replaces a source's chunk set:
// delete old, insert new, commit. Any failure rolls back and leaves
// the prior chunks intact.
func (s *Store) ReplaceChunksForSource(ctx context.Context, sourceID string, chunks []domain.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: err}
	}
	defer tx.Rollback(context.Background()) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE source_id = $1", sourceID); err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("deleting old chunks: %w", err)}
	}

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("marshalling chunk metadata: %w", err)}
		}
		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		var embedding any
		if len(chunk.Embedding) > 0 {
			embedding = vectorToString(chunk.Embedding)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, source_id, chunk_index, text, embedding, metadata,
				embedding_model, fingerprint)
			VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8)
		`, id, sourceID, chunk.ChunkIndex, chunk.Text, embedding, string(metadataJSON),
			chunk.EmbeddingModel, chunk.Fingerprint); err != nil {
			return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("inserting chunk %d: %w", chunk.ChunkIndex, err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: err}
	}
	return nil
}

// MarkSourceStatus updates a source's status and error message.
func (s *Store) MarkSourceStatus(ctx context.Context, sourceID string, status domain.SourceStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sources SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4
	`, string(status), errMsg, time.Now().UTC(), sourceID)
	if err != nil {
		return &domain.PersistenceError{Op: "mark source status", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteSource removes a source and its chunks.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sources WHERE id = $1", id)
	if err != nil {
		return &domain.PersistenceError{Op: "delete source", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountChunks returns the number of stored chunks for a source.
func (s *Store) CountChunks(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM chunks WHERE source_id = $1", sourceID).Scan(&count)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count chunks", Err: err}
	}
	return count, nil
}

// DenseSearch ranks chunks by cosine similarity to the query vector
// using the pgvector distance operator.
func (s *Store) DenseSearch(ctx context.Context, vector []float32, limit int) ([]driven.ChunkHit, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, chunk_index, text, metadata,
			1 - (embedding <=> $1::vector) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector, chunk_index
		LIMIT $2
	`, vectorToString(vector), limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "dense search", Err: err}
	}
	defer rows.Close()

	return scanHits(rows, "dense search")
}

// LexicalSearch ranks chunks with full-text search. Raw ts_rank_cd
// scores are unbounded, so they are normalized by the best hit.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	// websearch_to_tsquery tolerates arbitrary user input.
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, chunk_index, text, metadata,
			ts_rank_cd(to_tsvector('english', text), websearch_to_tsquery('english', $1)) AS score
		FROM chunks
		WHERE to_tsvector('english', text) @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC, chunk_index
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "lexical search", Err: err}
	}
	defer rows.Close()

	hits, err := scanHits(rows, "lexical search")
	if err != nil {
		return nil, err
	}
	normalizeByBest(hits)
	return hits, nil
}

// PatternSearch finds chunks containing the query as a literal
// substring, falling back to trigram similarity for near matches.
// Exact containment scores 1.0.
func (s *Store) PatternSearch(ctx context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, chunk_index, text, metadata,
			CASE WHEN position(lower($1) IN lower(text)) > 0
				THEN 1.0
				ELSE similarity(text, $1)::float8
			END AS score
		FROM chunks
		WHERE position(lower($1) IN lower(text)) > 0 OR text % $1
		ORDER BY score DESC, chunk_index
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "pattern search", Err: err}
	}
	defer rows.Close()

	return scanHits(rows, "pattern search")
}

func scanHits(rows pgx.Rows, op string) ([]driven.ChunkHit, error) {
	var hits []driven.ChunkHit
	for rows.Next() {
		var hit driven.ChunkHit
		var metadataJSON string
		if err := rows.Scan(&hit.ChunkID, &hit.SourceID, &hit.ChunkIndex, &hit.Text,
			&metadataJSON, &hit.Score); err != nil {
			return nil, &domain.PersistenceError{Op: op, Err: err}
		}
		if err := unmarshalChunkMetadata(metadataJSON, &hit.Metadata); err != nil {
			return nil, &domain.PersistenceError{Op: op, Err: err}
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: op, Err: err}
	}
	return hits, nil
}

func normalizeByBest(hits []driven.ChunkHit) {
	if len(hits) == 0 {
		return
	}
	best := hits[0].Score
	if best <= 0 {
		for i := range hits {
			hits[i].Score = 1.0
		}
		return
	}
	for i := range hits {
		hits[i].Score /= best
	}
}

func scanSource(row pgx.Row) (*domain.DocumentSource, error) {
	var source domain.DocumentSource
	var status, metadataJSON string
	err := row.Scan(&source.ID, &source.Location, &source.DocumentName, &source.DocumentType,
		&source.ContentHash, &status, &source.EmbeddingModel, &source.ErrorMessage,
		&metadataJSON, &source.CreatedAt, &source.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "get source", Err: err}
	}
	source.Status = domain.SourceStatus(status)
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &source.Metadata); err != nil {
			return nil, &domain.PersistenceError{Op: "get source", Err: fmt.Errorf("unmarshalling metadata: %w", err)}
		}
	}
	return &source, nil
}

func unmarshalChunkMetadata(raw string, meta *domain.ChunkMetadata) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return fmt.Errorf("unmarshalling chunk metadata: %w", err)
	}
	return nil
}

// vectorToString renders a float32 slice in pgvector text format,
// e.g. [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

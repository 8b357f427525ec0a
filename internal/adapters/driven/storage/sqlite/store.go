package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/retriva-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.PersistenceStore = (*Store)(nil)

// Store is a SQLite-based implementation of driven.PersistenceStore.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the given database path.
// If dbPath is empty, defaults to ~/.retriva/retriva.db.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".retriva", "retriva.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode keeps reads open during the chunk-replace transaction.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
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
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

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
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sources (id, location, document_name, document_type, content_hash,
			status, embedding_model, error_message, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET
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
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE location = ?", location)
	return scanSource(row)
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.DocumentSource, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)
	return scanSource(row)
}

// ListSources returns all tracked sources ordered by location.
func (s *Store) ListSources(ctx context.Context) ([]domain.DocumentSource, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sourceColumns+" FROM sources ORDER BY location")
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list sources", Err: err}
	}
	defer rows.Close()

	var sources []domain.DocumentSource
	for rows.Next() {
		source, err := scanSourceRows(rows)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_id = ?", sourceID); err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("deleting old chunks: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, chunk_index, text, embedding, metadata,
			embedding_model, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: err}
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("marshalling chunk metadata: %w", err)}
		}
		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, sourceID, chunk.ChunkIndex, chunk.Text,
			float32SliceToBytes(chunk.Embedding), string(metadataJSON),
			chunk.EmbeddingModel, chunk.Fingerprint); err != nil {
			return &domain.PersistenceError{Op: "replace chunks", Err: fmt.Errorf("inserting chunk %d: %w", chunk.ChunkIndex, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "replace chunks", Err: err}
	}
	return nil
}

// MarkSourceStatus updates a source's status and error message.
func (s *Store) MarkSourceStatus(ctx context.Context, sourceID string, status domain.SourceStatus, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sources SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, string(status), errMsg, time.Now().UTC(), sourceID)
	if err != nil {
		return &domain.PersistenceError{Op: "mark source status", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "mark source status", Err: err}
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteSource removes a source and its chunks.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return &domain.PersistenceError{Op: "delete source", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "delete source", Err: err}
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountChunks returns the number of stored chunks for a source.
func (s *Store) CountChunks(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count chunks", Err: err}
	}
	return count, nil
}

// DenseSearch ranks chunks by cosine similarity to the query vector.
// SQLite has no vector index, so this is an exact scan; acceptable for
// the local corpus sizes this backend serves.
func (s *Store) DenseSearch(ctx context.Context, vector []float32, limit int) ([]driven.ChunkHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, chunk_index, text, metadata, embedding
		FROM chunks WHERE embedding IS NOT NULL
	`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "dense search", Err: err}
	}
	defer rows.Close()

	var hits []driven.ChunkHit
	for rows.Next() {
		var hit driven.ChunkHit
		var metadataJSON string
		var embeddingBlob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.SourceID, &hit.ChunkIndex,
			&hit.Text, &metadataJSON, &embeddingBlob); err != nil {
			return nil, &domain.PersistenceError{Op: "dense search", Err: err}
		}
		if err := unmarshalMetadata(metadataJSON, &hit.Metadata); err != nil {
			return nil, err
		}
		score := cosine(vector, bytesToFloat32Slice(embeddingBlob))
		if score <= 0 {
			continue
		}
		hit.Score = score
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "dense search", Err: err}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// LexicalSearch ranks chunks by BM25 over the FTS5 index. Scores are
// normalized to the best hit in the result set.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_id, c.chunk_index, c.text, c.metadata, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "lexical search", Err: err}
	}
	defer rows.Close()

	return scanRankedHits(rows, "lexical search")
}

// PatternSearch ranks chunks by trigram match against the query.
// Queries shorter than a trigram fall back to a LIKE scan.
func (s *Store) PatternSearch(ctx context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	needle := strings.TrimSpace(query)
	if needle == "" {
		return nil, nil
	}
	if len(needle) < 3 {
		return s.likeSearch(ctx, needle, limit)
	}

	// Quote the whole query as one FTS5 string so hyphens and other
	// syntax characters match literally.
	match := `"` + strings.ReplaceAll(needle, `"`, `""`) + `"`

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_id, c.chunk_index, c.text, c.metadata, bm25(chunks_trigram) AS rank
		FROM chunks_trigram
		JOIN chunks c ON c.rowid = chunks_trigram.rowid
		WHERE chunks_trigram MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "pattern search", Err: err}
	}
	defer rows.Close()

	return scanRankedHits(rows, "pattern search")
}

// likeSearch is the sub-trigram fallback: plain substring containment,
// every hit scoring 1.
func (s *Store) likeSearch(ctx context.Context, needle string, limit int) ([]driven.ChunkHit, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(needle)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, chunk_index, text, metadata
		FROM chunks
		WHERE text LIKE ? ESCAPE '\'
		ORDER BY chunk_index
		LIMIT ?
	`, "%"+escaped+"%", limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "pattern search", Err: err}
	}
	defer rows.Close()

	var hits []driven.ChunkHit
	for rows.Next() {
		var hit driven.ChunkHit
		var metadataJSON string
		if err := rows.Scan(&hit.ChunkID, &hit.SourceID, &hit.ChunkIndex, &hit.Text, &metadataJSON); err != nil {
			return nil, &domain.PersistenceError{Op: "pattern search", Err: err}
		}
		if err := unmarshalMetadata(metadataJSON, &hit.Metadata); err != nil {
			return nil, err
		}
		hit.Score = 1.0
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "pattern search", Err: err}
	}
	return hits, nil
}

// scanRankedHits scans BM25-ranked rows and normalizes the scores to
// [0, 1] against the best hit. BM25 ranks are better when smaller
// (more negative), so the sign is flipped first.
func scanRankedHits(rows *sql.Rows, op string) ([]driven.ChunkHit, error) {
	var hits []driven.ChunkHit
	var raws []float64
	for rows.Next() {
		var hit driven.ChunkHit
		var metadataJSON string
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &hit.SourceID, &hit.ChunkIndex,
			&hit.Text, &metadataJSON, &rank); err != nil {
			return nil, &domain.PersistenceError{Op: op, Err: err}
		}
		if err := unmarshalMetadata(metadataJSON, &hit.Metadata); err != nil {
			return nil, err
		}
		raws = append(raws, -rank)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: op, Err: err}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	best := raws[0]
	for _, r := range raws {
		if r > best {
			best = r
		}
	}
	for i := range hits {
		if best > 0 {
			hits[i].Score = raws[i] / best
		} else {
			hits[i].Score = 1.0
		}
	}
	return hits, nil
}

// buildMatchQuery turns free text into an FTS5 AND-query of quoted
// tokens, so user input can never be parsed as FTS syntax. All-terms
// matching keeps the ranking consistent with the postgres backend's
// websearch_to_tsquery semantics.
func buildMatchQuery(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var quoted []string
	for _, f := range fields {
		if len(f) > 1 {
			quoted = append(quoted, `"`+f+`"`)
		}
	}
	return strings.Join(quoted, " AND ")
}

func scanSource(row *sql.Row) (*domain.DocumentSource, error) {
	var source domain.DocumentSource
	var status, metadataJSON string
	if err := row.Scan(&source.ID, &source.Location, &source.DocumentName,
		&source.DocumentType, &source.ContentHash, &status, &source.EmbeddingModel,
		&source.ErrorMessage, &metadataJSON, &source.CreatedAt, &source.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.PersistenceError{Op: "get source", Err: err}
	}
	source.Status = domain.SourceStatus(status)
	if err := unmarshalSourceMetadata(metadataJSON, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

func scanSourceRows(rows *sql.Rows) (*domain.DocumentSource, error) {
	var source domain.DocumentSource
	var status, metadataJSON string
	if err := rows.Scan(&source.ID, &source.Location, &source.DocumentName,
		&source.DocumentType, &source.ContentHash, &status, &source.EmbeddingModel,
		&source.ErrorMessage, &metadataJSON, &source.CreatedAt, &source.UpdatedAt); err != nil {
		return nil, &domain.PersistenceError{Op: "scan source", Err: err}
	}
	source.Status = domain.SourceStatus(status)
	if err := unmarshalSourceMetadata(metadataJSON, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

func unmarshalSourceMetadata(metadataJSON string, source *domain.DocumentSource) error {
	if metadataJSON == "" || metadataJSON == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(metadataJSON), &source.Metadata); err != nil {
		return &domain.PersistenceError{Op: "scan source", Err: fmt.Errorf("unmarshaling metadata: %w", err)}
	}
	return nil
}

func unmarshalMetadata(metadataJSON string, metadata *domain.ChunkMetadata) error {
	if metadataJSON == "" || metadataJSON == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(metadataJSON), metadata); err != nil {
		return &domain.PersistenceError{Op: "scan chunk", Err: fmt.Errorf("unmarshaling chunk metadata: %w", err)}
	}
	return nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package domain

// Settings is the full application configuration. Loaded from a TOML
// file; zero values are replaced by defaults before validation.
type Settings struct {
	Chunk     ChunkSettings     `toml:"chunk"`
	Embedding EmbeddingSettings `toml:"embedding"`
	Storage   StorageSettings   `toml:"storage"`
	Retrieval RetrievalSettings `toml:"retrieval"`
	Ingestion IngestionSettings `toml:"ingestion"`
	Logging   LoggingSettings   `toml:"logging"`
}

// ChunkSettings holds chunking bounds, measured in characters.
type ChunkSettings struct {
	// MinChars is the minimum chunk size; adjacent segments are
	// accumulated until a chunk reaches it.
	MinChars int `toml:"min_chars"`

	// MaxChars is the maximum chunk size; larger pieces are split at
	// whitespace.
	MaxChars int `toml:"max_chars"`

	// OverlapChars is the tail carried from one split piece into the
	// next.
	OverlapChars int `toml:"overlap_chars"`
}

// Embedding providers.
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderOllama = "ollama"
)

// EmbeddingSettings holds the embedding client configuration.
type EmbeddingSettings struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or
	// "ollama" (the native Ollama API).
	Provider string `toml:"provider"`

	// BaseURL is the provider endpoint root.
	BaseURL string `toml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// Keys are never stored in the config file itself.
	APIKeyEnv string `toml:"api_key_env"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// Dimensions is the expected vector size; responses with a
	// different size fail validation.
	Dimensions int `toml:"dimensions"`

	// BatchSize is the number of texts per request.
	BatchSize int `toml:"batch_size"`

	// RetryCount is the number of retries per transient batch failure.
	RetryCount int `toml:"retry_count"`

	// BackoffSeconds is the base of the exponential retry backoff.
	BackoffSeconds float64 `toml:"backoff_seconds"`

	// RequestsPerSecond caps the request rate. Zero disables the cap.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// TimeoutSeconds bounds a single HTTP request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Storage backends.
const (
	StorageBackendPostgres = "postgres"
	StorageBackendSQLite   = "sqlite"
)

// StorageSettings selects and configures the persistence backend.
type StorageSettings struct {
	// Backend is "postgres" or "sqlite".
	Backend string `toml:"backend"`

	// DSN is the PostgreSQL connection string. Used when Backend is
	// "postgres".
	DSN string `toml:"dsn"`

	// Path is the SQLite database file. Used when Backend is
	// "sqlite"; empty means ~/.retriva/retriva.db.
	Path string `toml:"path"`
}

// RetrievalSettings holds query-time configuration.
type RetrievalSettings struct {
	// TopK is the default number of results.
	TopK int `toml:"top_k"`

	// MinScore drops combined scores below the threshold.
	MinScore float64 `toml:"min_score"`

	// CandidateLimit is how many hits each search pass fetches before
	// combining. Must be >= TopK.
	CandidateLimit int `toml:"candidate_limit"`

	// SearchTimeoutSeconds bounds each individual search pass.
	SearchTimeoutSeconds int `toml:"search_timeout_seconds"`

	// Identifier is the weight profile for identifier-like queries.
	Identifier WeightProfile `toml:"identifier"`

	// Conceptual is the weight profile for natural-language queries.
	Conceptual WeightProfile `toml:"conceptual"`
}

// IngestionSettings holds pipeline configuration.
type IngestionSettings struct {
	// MaxFailures halts a job once this many documents have failed.
	// Zero means no threshold.
	MaxFailures int `toml:"max_failures"`

	// Concurrency is the number of documents processed in parallel.
	Concurrency int `toml:"concurrency"`

	// GlobPatterns selects files during discovery.
	GlobPatterns []string `toml:"glob_patterns"`
}

// LoggingSettings holds logger configuration.
type LoggingSettings struct {
	// Verbose enables debug output.
	Verbose bool `toml:"verbose"`
}

// DefaultSettings returns the configuration used when the file is
// absent or a section is omitted.
func DefaultSettings() Settings {
	return Settings{
		Chunk: ChunkSettings{
			MinChars:     400,
			MaxChars:     1000,
			OverlapChars: 60,
		},
		Embedding: EmbeddingSettings{
			Provider:       EmbeddingProviderOpenAI,
			BaseURL:        "https://api.openai.com/v1",
			APIKeyEnv:      "RETRIVA_API_KEY",
			Model:          "text-embedding-3-small",
			Dimensions:     1024,
			BatchSize:      8,
			RetryCount:     1,
			BackoffSeconds: 2.0,
			TimeoutSeconds: 30,
		},
		Storage: StorageSettings{
			Backend: StorageBackendSQLite,
		},
		Retrieval: RetrievalSettings{
			TopK:                 10,
			MinScore:             0.0,
			CandidateLimit:       50,
			SearchTimeoutSeconds: 10,
			Identifier:           WeightProfile{Dense: 0.2, Lexical: 0.3, Pattern: 0.5},
			Conceptual:           WeightProfile{Dense: 0.6, Lexical: 0.3, Pattern: 0.1},
		},
		Ingestion: IngestionSettings{
			MaxFailures:  0,
			Concurrency:  1,
			GlobPatterns: []string{"*.md", "*.txt"},
		},
	}
}

// Normalize fills zero-valued fields from the defaults. Explicitly
// configured values are kept.
func (s *Settings) Normalize() {
	d := DefaultSettings()
	if s.Chunk.MinChars == 0 {
		s.Chunk.MinChars = d.Chunk.MinChars
	}
	if s.Chunk.MaxChars == 0 {
		s.Chunk.MaxChars = d.Chunk.MaxChars
	}
	if s.Chunk.OverlapChars == 0 {
		s.Chunk.OverlapChars = d.Chunk.OverlapChars
	}
	if s.Embedding.Provider == "" {
		s.Embedding.Provider = d.Embedding.Provider
	}
	// The ollama client defaults its own base URL.
	if s.Embedding.BaseURL == "" && s.Embedding.Provider == EmbeddingProviderOpenAI {
		s.Embedding.BaseURL = d.Embedding.BaseURL
	}
	if s.Embedding.APIKeyEnv == "" {
		s.Embedding.APIKeyEnv = d.Embedding.APIKeyEnv
	}
	if s.Embedding.Model == "" {
		s.Embedding.Model = d.Embedding.Model
	}
	if s.Embedding.Dimensions == 0 {
		s.Embedding.Dimensions = d.Embedding.Dimensions
	}
	if s.Embedding.BatchSize == 0 {
		s.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if s.Embedding.BackoffSeconds == 0 {
		s.Embedding.BackoffSeconds = d.Embedding.BackoffSeconds
	}
	if s.Embedding.TimeoutSeconds == 0 {
		s.Embedding.TimeoutSeconds = d.Embedding.TimeoutSeconds
	}
	if s.Storage.Backend == "" {
		s.Storage.Backend = d.Storage.Backend
	}
	if s.Retrieval.TopK == 0 {
		s.Retrieval.TopK = d.Retrieval.TopK
	}
	if s.Retrieval.CandidateLimit == 0 {
		s.Retrieval.CandidateLimit = d.Retrieval.CandidateLimit
	}
	if s.Retrieval.SearchTimeoutSeconds == 0 {
		s.Retrieval.SearchTimeoutSeconds = d.Retrieval.SearchTimeoutSeconds
	}
	if s.Retrieval.Identifier.Zero() {
		s.Retrieval.Identifier = d.Retrieval.Identifier
	}
	if s.Retrieval.Conceptual.Zero() {
		s.Retrieval.Conceptual = d.Retrieval.Conceptual
	}
	if s.Ingestion.Concurrency == 0 {
		s.Ingestion.Concurrency = d.Ingestion.Concurrency
	}
	if len(s.Ingestion.GlobPatterns) == 0 {
		s.Ingestion.GlobPatterns = d.Ingestion.GlobPatterns
	}
}

// Validate checks the configuration. Violations are fatal at startup.
func (s *Settings) Validate() error {
	if s.Chunk.MinChars <= 0 {
		return &ConfigError{Field: "chunk.min_chars", Reason: "must be positive"}
	}
	if s.Chunk.MaxChars <= 0 {
		return &ConfigError{Field: "chunk.max_chars", Reason: "must be positive"}
	}
	if s.Chunk.MinChars >= s.Chunk.MaxChars {
		return &ConfigError{Field: "chunk.min_chars", Reason: "must be smaller than chunk.max_chars"}
	}
	if s.Chunk.OverlapChars < 0 {
		return &ConfigError{Field: "chunk.overlap_chars", Reason: "must not be negative"}
	}
	if s.Chunk.OverlapChars >= s.Chunk.MaxChars {
		return &ConfigError{Field: "chunk.overlap_chars", Reason: "must be smaller than chunk.max_chars"}
	}
	switch s.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderOllama:
	default:
		return &ConfigError{Field: "embedding.provider", Reason: "must be \"openai\" or \"ollama\""}
	}
	if s.Embedding.BatchSize <= 0 {
		return &ConfigError{Field: "embedding.batch_size", Reason: "must be positive"}
	}
	if s.Embedding.RetryCount < 0 {
		return &ConfigError{Field: "embedding.retry_count", Reason: "must not be negative"}
	}
	if s.Embedding.Dimensions <= 0 {
		return &ConfigError{Field: "embedding.dimensions", Reason: "must be positive"}
	}
	switch s.Storage.Backend {
	case StorageBackendPostgres:
		if s.Storage.DSN == "" {
			return &ConfigError{Field: "storage.dsn", Reason: "required for the postgres backend"}
		}
	case StorageBackendSQLite:
	default:
		return &ConfigError{Field: "storage.backend", Reason: "must be \"postgres\" or \"sqlite\""}
	}
	if s.Retrieval.TopK <= 0 {
		return &ConfigError{Field: "retrieval.top_k", Reason: "must be positive"}
	}
	if s.Retrieval.CandidateLimit < s.Retrieval.TopK {
		return &ConfigError{Field: "retrieval.candidate_limit", Reason: "must be at least retrieval.top_k"}
	}
	if err := s.Retrieval.Identifier.Validate("retrieval.identifier"); err != nil {
		return err
	}
	if err := s.Retrieval.Conceptual.Validate("retrieval.conceptual"); err != nil {
		return err
	}
	if s.Ingestion.Concurrency <= 0 {
		return &ConfigError{Field: "ingestion.concurrency", Reason: "must be positive"}
	}
	if s.Ingestion.MaxFailures < 0 {
		return &ConfigError{Field: "ingestion.max_failures", Reason: "must not be negative"}
	}
	return nil
}

// Package sqlite provides a SQLite-backed persistence store for fully
// local use. Dense search is an exact cosine scan over stored vectors;
// lexical search uses an FTS5 index with BM25 ranking; pattern search
// uses an FTS5 trigram index.
//
// The schema is managed through embedded, versioned migrations applied
// at startup.
package sqlite

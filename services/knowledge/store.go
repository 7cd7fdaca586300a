// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge provides the runbook knowledge store backed by TiDB.
//
// The ingestion pipeline (external to this service) chunks runbook markdown
// and writes rows into the `knowledgebase` table with a 768-dimension
// embedding column. This package covers the two read paths Sentinel needs:
// vector-similarity search for RAG retrieval, and the row-count probe the
// monitoring agent uses to detect an empty knowledge base.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Chunk is one retrieved knowledge-base row, ordered by cosine distance
// (lower is more similar).
type Chunk struct {
	Content  string
	Source   string
	Distance float64
}

// Config holds TiDB connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// TLSConfigName names a TLS config registered with the mysql driver,
	// e.g. "tidb" for TiDB Cloud. Empty disables TLS.
	TLSConfigName string
}

// Store wraps the TiDB connection pool.
type Store struct {
	db *sql.DB
}

// Open creates a Store and verifies connectivity.
//
// # Description
//
// Builds a DSN from cfg, opens the connection pool, and pings with a 5
// second timeout. The pool is sized conservatively: the agent's probe
// traffic plus interactive queries never need many connections.
//
// # Inputs
//
//   - cfg: Connection settings. Database defaults to "devops_sentinel".
//
// # Outputs
//
//   - *Store: Ready for Count/Search/Ping.
//   - error: Non-nil if the DSN is invalid or the ping fails.
func Open(cfg Config) (*Store, error) {
	if cfg.Database == "" {
		cfg.Database = "devops_sentinel"
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if cfg.TLSConfigName != "" {
		mc.TLSConfig = cfg.TLSConfigName
	}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("knowledge store unreachable: %w", err)
	}

	slog.Info("Knowledge store connected",
		"host", cfg.Host,
		"database", cfg.Database,
	)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the total number of knowledge-base chunks.
//
// The monitoring agent treats a count of exactly zero as a critical
// condition: retrieval can only ever return nothing.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledgebase").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge base rows: %w", err)
	}
	return total, nil
}

// DistinctSources returns the number of distinct source files ingested.
func (s *Store) DistinctSources(ctx context.Context) (int64, error) {
	var sources int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT source_file) FROM knowledgebase").Scan(&sources)
	if err != nil {
		return 0, fmt.Errorf("failed to count knowledge base sources: %w", err)
	}
	return sources, nil
}

// Search returns the limit nearest chunks to the query vector.
//
// # Description
//
// Runs TiDB's VEC_COSINE_DISTANCE against the embedding column and returns
// rows in ascending distance order (best match first). The vector is passed
// as a bracketed text literal via VEC_FROM_TEXT, which is how the ingestion
// side wrote the column.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeouts.
//   - vector: Query embedding. Must be non-empty.
//   - limit: Maximum rows to return. Must be positive.
//
// # Outputs
//
//   - []Chunk: Up to limit chunks, best match first. Empty slice when the
//     knowledge base has no rows.
//   - error: Non-nil on query failure.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]Chunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	const query = `
		SELECT
			content_chunk,
			source_file,
			VEC_COSINE_DISTANCE(embedding, VEC_FROM_TEXT(?)) AS distance
		FROM knowledgebase
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, vectorLiteral(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Content, &c.Source, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search iteration failed: %w", err)
	}

	slog.Debug("Vector search completed", "results", len(chunks))
	return chunks, nil
}

// vectorLiteral renders a vector as the bracketed text form TiDB's
// VEC_FROM_TEXT expects: "[0.1,0.2,...]".
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector) * 12)
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

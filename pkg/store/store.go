// Package store persists learned facts with their embeddings in SQLite and
// serves vector similarity search over them. Connections are managed by a
// bounded pool so concurrent retrieval calls reuse handles instead of
// reopening the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"opsagent/pkg/logx"
	"opsagent/pkg/pool"
)

// Fact is a stored piece of knowledge with its embedding.
type Fact struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchResult is one vector-search candidate.
type SearchResult struct {
	Content  string
	Score    float64
	Metadata map[string]string
}

// Conn is a pooled database handle. Each Conn owns its own sql.DB capped
// at one underlying connection, so pool accounting matches real handles.
type Conn struct {
	db *sql.DB
}

// Close releases the underlying database handle.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Store is a SQLite-backed fact store.
type Store struct {
	pool   *pool.Pool[*Conn]
	logger *logx.Logger
	path   string
}

// Open creates a Store at the given database path, ensuring the schema
// exists and warming the connection pool.
func Open(path string, poolCfg pool.Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	factory := func(_ context.Context) (*Conn, error) {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// One pooled Conn maps to exactly one SQLite connection.
		db.SetMaxOpenConns(1)
		return &Conn{db: db}, nil
	}

	p := pool.New(poolCfg, factory)

	s := &Store{
		pool:   p,
		logger: logx.NewLogger("store"),
		path:   path,
	}

	if err := s.ensureSchema(context.Background()); err != nil {
		_ = p.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS facts (
				id         TEXT PRIMARY KEY,
				content    TEXT NOT NULL,
				embedding  TEXT NOT NULL,
				metadata   TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`)
		if err != nil {
			return fmt.Errorf("failed to create facts table: %w", err)
		}
		return nil
	})
}

// Save persists a fact and returns its generated id.
func (s *Store) Save(ctx context.Context, content string, embedding []float32, metadata map[string]string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("content cannot be empty")
	}
	if len(embedding) == 0 {
		return "", fmt.Errorf("embedding cannot be empty")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	id := uuid.New().String()

	err = s.pool.WithConn(ctx, func(conn *Conn) error {
		_, err := conn.db.ExecContext(ctx,
			`INSERT INTO facts (id, content, embedding, metadata) VALUES (?, ?, ?, ?)`,
			id, content, string(embJSON), string(metaJSON))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save fact: %w", err)
	}

	s.logger.Debug("saved fact %s (%d chars, %d dims)", id, len(content), len(embedding))
	return id, nil
}

// Search returns the top-limit facts by cosine similarity to the query
// vector, highest first. An empty store returns an empty slice.
func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	var results []SearchResult
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		rows, err := conn.db.QueryContext(ctx, `SELECT content, embedding, metadata FROM facts`)
		if err != nil {
			return fmt.Errorf("failed to query facts: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var content, embJSON, metaJSON string
			if err := rows.Scan(&content, &embJSON, &metaJSON); err != nil {
				return fmt.Errorf("failed to scan fact: %w", err)
			}

			var embedding []float32
			if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
				s.logger.Warn("skipping fact with corrupt embedding: %v", err)
				continue
			}

			var metadata map[string]string
			if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
				metadata = map[string]string{}
			}

			results = append(results, SearchResult{
				Content:  content,
				Score:    CosineSimilarity(vector, embedding),
				Metadata: metadata,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Count returns the number of stored facts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.WithConn(ctx, func(conn *Conn) error {
		return conn.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&count)
	})
	return count, err
}

// Stats exposes the underlying pool occupancy.
func (s *Store) Stats() (active, idle, waiting int) {
	return s.pool.Stats()
}

// Close shuts down the store and its connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

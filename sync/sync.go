// Package sync copies remote document chunks and their embeddings into a
// local sqlite-vec mirror.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/andrejsstepanovs/supadiag/db"
	"github.com/andrejsstepanovs/supadiag/models"
	"go.uber.org/zap"
)

const (
	DefaultTable    = "document_chunks"
	DefaultPageSize = 200
)

// ChunkSource is where chunks are pulled from.
type ChunkSource interface {
	Select(q backend.Query, into any) error
}

type Embedder interface {
	Embeddings(ctx context.Context, text string) (models.EmbeddingResponse, error)
	EmbeddingModel() string
}

type Config struct {
	Alias     string
	Dir       string
	SourceURL string
	Table     string
	Model     string // embedding model expected by the mirror, checked on sync
	PageSize  int
}

func (c *Config) validate() error {
	c.Alias = strings.TrimSpace(c.Alias)
	if c.Alias == "" {
		return errors.New("mirror alias is required")
	}
	if strings.ContainsAny(c.Alias, `/\`) || strings.HasPrefix(c.Alias, ".") {
		return fmt.Errorf("invalid mirror alias %q", c.Alias)
	}
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return nil
}

type Stats struct {
	Alias      string `json:"alias"`
	Dimensions int    `json:"dimensions"`
	Pulled     int    `json:"pulled"`
	Added      int    `json:"added"`
	Removed    int    `json:"removed"`
	Skipped    int    `json:"skipped"`
	Total      int    `json:"total"`
}

func (s Stats) Header() []string {
	return []string{"ALIAS", "DIMENSIONS", "PULLED", "ADDED", "REMOVED", "SKIPPED", "TOTAL"}
}

func (s Stats) Rows() [][]string {
	return [][]string{{
		s.Alias,
		fmt.Sprint(s.Dimensions),
		fmt.Sprint(s.Pulled),
		fmt.Sprint(s.Added),
		fmt.Sprint(s.Removed),
		fmt.Sprint(s.Skipped),
		fmt.Sprint(s.Total),
	}}
}

// Build wipes the mirror and pulls every embedded chunk. The vector size is
// taken from the embedder so that queries and stored vectors match; remote
// vectors of any other size are skipped.
func Build(ctx context.Context, src ChunkSource, ai Embedder, cfg Config, log *zap.Logger) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	res, err := ai.Embeddings(ctx, "1")
	if err != nil {
		return nil, fmt.Errorf("error generating embedding for dimensions: %w", err)
	}
	dimensions := len(res.GetEmbeddings().Float32())
	if dimensions == 0 {
		return nil, errors.New("received empty embedding dimensions")
	}

	if err := db.RemoveDatabase(cfg.Dir, cfg.Alias); err != nil {
		return nil, err
	}
	dbConn, err := db.SetupDatabase(cfg.Dir, cfg.Alias, dimensions)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	err = db.UpsertMirror(dbConn, models.Mirror{
		Alias:      cfg.Alias,
		SourceURL:  cfg.SourceURL,
		Table:      cfg.Table,
		Model:      ai.EmbeddingModel(),
		Dimensions: dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("error saving mirror metadata: %w", err)
	}

	stats := &Stats{Alias: cfg.Alias, Dimensions: dimensions}
	log.Info("building mirror", zap.String("alias", cfg.Alias), zap.Int("dimensions", dimensions))
	for page, err := range pages(src, cfg.Table, cfg.PageSize) {
		if err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Pulled += len(page)
		for _, chunk := range page {
			if err := save(dbConn, chunk, dimensions, stats, log); err != nil {
				return stats, err
			}
		}
		log.Info("progress", zap.Int("pulled", stats.Pulled), zap.Int("added", stats.Added))
	}

	stats.Total = stats.Added
	log.Info("mirror built", zap.String("alias", cfg.Alias), zap.Int("chunks", stats.Total), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// Sync adds remote chunks missing from the mirror and removes local chunks
// that no longer exist remotely.
func Sync(ctx context.Context, src ChunkSource, cfg Config, log *zap.Logger) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.SetupDatabase(cfg.Dir, cfg.Alias, 0)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	mirror, err := db.GetMirror(dbConn, cfg.Alias)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mirror '%s' not found, run mirror build first", cfg.Alias)
	}
	if err != nil {
		return nil, err
	}
	if ok, err := db.HasVectors(dbConn); err != nil {
		return nil, err
	} else if !ok {
		return nil, db.ErrNoVectors
	}
	if cfg.Model != "" && cfg.Model != mirror.Model {
		log.Warn("embedding model differs from the one the mirror was built with",
			zap.String("mirror_model", mirror.Model), zap.String("configured_model", cfg.Model))
	}

	local, err := db.GetRemoteIDs(dbConn)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Alias: cfg.Alias, Dimensions: mirror.Dimensions}
	seen := make(map[string]bool, len(local))
	for page, err := range pages(src, mirror.Table, cfg.PageSize) {
		if err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Pulled += len(page)
		for _, chunk := range page {
			seen[string(chunk.ID)] = true
			if _, exists := local[string(chunk.ID)]; exists {
				continue
			}
			if err := save(dbConn, chunk, mirror.Dimensions, stats, log); err != nil {
				return stats, err
			}
		}
	}

	chunks, err := db.GetMirroredChunks(dbConn)
	if err != nil {
		return stats, err
	}
	for _, c := range chunks {
		if seen[c.RemoteID] {
			continue
		}
		log.Debug("removing chunk gone remotely", zap.String("remote_id", c.RemoteID))
		if err := db.DeleteChunk(dbConn, c.ID); err != nil {
			return stats, fmt.Errorf("error deleting chunk %s: %w", c.RemoteID, err)
		}
		stats.Removed++
	}

	stats.Total = len(chunks) - stats.Removed
	log.Info("mirror synced", zap.String("alias", cfg.Alias),
		zap.Int("added", stats.Added), zap.Int("removed", stats.Removed), zap.Int("chunks", stats.Total))
	return stats, nil
}

func save(dbConn *sql.DB, chunk models.DocumentChunk, dimensions int, stats *Stats, log *zap.Logger) error {
	if len(chunk.Embedding) != dimensions {
		log.Warn("skipping chunk with unexpected vector size",
			zap.String("remote_id", string(chunk.ID)), zap.Int("size", len(chunk.Embedding)), zap.Int("expected", dimensions))
		stats.Skipped++
		return nil
	}
	if _, err := db.SaveChunk(dbConn, chunk); err != nil {
		return fmt.Errorf("error saving chunk %s: %w", chunk.ID, err)
	}
	stats.Added++
	return nil
}

// pages walks embedded chunks in id order, one keyset page at a time.
func pages(src ChunkSource, table string, size int) iter.Seq2[[]models.DocumentChunk, error] {
	return func(yield func([]models.DocumentChunk, error) bool) {
		last := ""
		for {
			q := backend.Query{
				Table:     table,
				Columns:   "id,document_id,page_number,content,embedding",
				Filters:   []backend.Filter{backend.NotNull("embedding")},
				OrderBy:   "id",
				Ascending: true,
				Limit:     size,
			}
			if last != "" {
				q.Filters = append(q.Filters, backend.Gt("id", last))
			}

			var page []models.DocumentChunk
			if err := src.Select(q, &page); err != nil {
				yield(nil, fmt.Errorf("failed to pull chunks after id %q: %w", last, err))
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page) < size {
				return
			}
			last = string(page[len(page)-1].ID)
		}
	}
}

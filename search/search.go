// Package search runs similarity queries against a local chunk mirror.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrejsstepanovs/supadiag/db"
	"github.com/andrejsstepanovs/supadiag/models"
	"github.com/andrejsstepanovs/supadiag/render"
	"go.uber.org/zap"
)

type Embedder interface {
	Embeddings(ctx context.Context, text string) (models.EmbeddingResponse, error)
	EmbeddingModel() string
}

// Config holds the configuration for a search operation.
type Config struct {
	Alias         string
	Dir           string
	Query         string
	MinSimilarity float64
	Limit         int
}

// ParseConfig builds a Config from "<alias> <query words...>".
func ParseConfig(args []string) (*Config, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("at least 2 arguments required (alias, query)")
	}

	config := &Config{
		Alias:         args[0],
		Query:         strings.TrimSpace(strings.Join(args[1:], " ")),
		MinSimilarity: 0.3,
		Limit:         10,
	}
	if config.Query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	return config, nil
}

type Results []db.SearchResult

func (r Results) Header() []string {
	return []string{"#", "SIMILARITY", "REMOTE ID", "DOCUMENT", "PAGE", "CONTENT"}
}

func (r Results) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for i, res := range r {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(res.Distance, 'f', 4, 64),
			res.RemoteID,
			res.DocumentID,
			strconv.Itoa(res.PageNumber),
			render.Preview(res.Content, 120),
		})
	}
	return rows
}

// Run embeds the query and searches the mirror. Result distances hold
// similarity scores.
func Run(ctx context.Context, ai Embedder, config *Config, log *zap.Logger) (Results, error) {
	dir := config.Dir
	if dir == "" {
		dir = "."
	}
	dbConn, err := db.SetupDatabase(dir, config.Alias, 0)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	mirror, err := db.GetMirror(dbConn, config.Alias)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mirror '%s' not found, run mirror build first", config.Alias)
		}
		return nil, fmt.Errorf("error retrieving mirror: %w", err)
	}
	if mirror.Model != ai.EmbeddingModel() {
		log.Warn("query model differs from mirror model, similarities may be meaningless",
			zap.String("mirror_model", mirror.Model), zap.String("query_model", ai.EmbeddingModel()))
	}

	embedding, err := ai.Embeddings(ctx, config.Query)
	if err != nil {
		return nil, fmt.Errorf("error generating embeddings for query: %w", err)
	}
	vector := embedding.GetEmbeddings().Float32()
	if len(vector) != mirror.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, mirror expects %d", len(vector), mirror.Dimensions)
	}

	limit := config.Limit
	if limit <= 0 {
		limit = db.DefaultSearchOptions().MaxResults
	}
	results, err := db.SearchWithSimilarity(dbConn, vector, config.MinSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("error searching for similar chunks: %w", err)
	}

	log.Info("mirror search", zap.String("alias", config.Alias), zap.Int("results", len(results)))
	return results, nil
}

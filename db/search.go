package db

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// SearchResult is a mirrored chunk with its cosine distance to the query.
type SearchResult struct {
	ID         int64   `json:"id"`
	RemoteID   string  `json:"remote_id"`
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}

type SearchOptions struct {
	MaxDistance float64 // results further away are dropped
	MinResults  int     // returned even when beyond MaxDistance
	MaxResults  int
	UseAdaptive bool // cut at the largest gap in the distance distribution
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxDistance: 0.8,
		MinResults:  2,
		MaxResults:  20,
		UseAdaptive: true,
	}
}

func SearchWithThreshold(db *sql.DB, embeddings []float32, opts SearchOptions) ([]SearchResult, error) {
	embeddingBytes, err := sqlite_vec.SerializeFloat32(embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize embedding: %w", err)
	}

	// fetch a wider set so the adaptive cut has a distribution to look at
	initialLimit := max(opts.MaxResults*2, 100)

	query := `
		SELECT c.id, c.remote_id, c.document_id, c.page_number, c.content, cv.distance
		FROM chunk_vectors cv
		JOIN chunks c ON c.id = cv.rowid
		WHERE cv.embedding MATCH vec_f32(?)
		AND k = ?
		ORDER BY cv.distance ASC
	`

	rows, err := db.Query(query, embeddingBytes, initialLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	var allResults []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.RemoteID, &r.DocumentID, &r.PageNumber, &r.Content, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan embedding search row: %w", err)
		}
		allResults = append(allResults, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return filterByDistance(allResults, opts), nil
}

func filterByDistance(results []SearchResult, opts SearchOptions) []SearchResult {
	if len(results) == 0 {
		return results
	}

	threshold := opts.MaxDistance
	if opts.UseAdaptive {
		threshold = calculateAdaptiveThreshold(results, opts.MaxDistance)
	}

	var filtered []SearchResult
	for _, r := range results {
		if r.Distance <= threshold && len(filtered) < opts.MaxResults {
			filtered = append(filtered, r)
		}
	}

	if len(filtered) < opts.MinResults {
		return results[:min(opts.MinResults, len(results), opts.MaxResults)]
	}
	return filtered
}

// calculateAdaptiveThreshold finds the largest gap among the first 20
// distances and cuts halfway through it, never above maxThreshold.
func calculateAdaptiveThreshold(results []SearchResult, maxThreshold float64) float64 {
	if len(results) <= 1 {
		return maxThreshold
	}

	largestGap := 0.0
	gapIndex := 0
	for i := 1; i < len(results) && i < 20; i++ {
		gap := results[i].Distance - results[i-1].Distance
		if gap > largestGap {
			largestGap = gap
			gapIndex = i
		}
	}

	if largestGap > 0.05 && gapIndex > 0 {
		adaptiveThreshold := results[gapIndex-1].Distance + (largestGap / 2)
		if adaptiveThreshold < maxThreshold {
			return adaptiveThreshold
		}
	}
	return maxThreshold
}

// SearchWithSimilarity returns results whose similarity (1 - distance) is at
// least minSimilarity. Distance fields hold the similarity on return.
func SearchWithSimilarity(db *sql.DB, embeddings []float32, minSimilarity float64, maxResults int) ([]SearchResult, error) {
	opts := SearchOptions{
		MaxDistance: 1.0 - minSimilarity,
		MinResults:  1,
		MaxResults:  maxResults,
		UseAdaptive: true,
	}

	results, err := SearchWithThreshold(db, embeddings, opts)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Distance = 1.0 - results[i].Distance
	}
	return results, nil
}

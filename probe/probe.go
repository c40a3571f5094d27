// Package probe runs connectivity and embedding diagnostics against the data
// service and the embeddings API.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/andrejsstepanovs/supadiag/models"
	"github.com/andrejsstepanovs/supadiag/render"
	"go.uber.org/zap"
)

const (
	ChunksTable   = "document_chunks"
	MatchFunction = "match_documents"
)

// ErrDimensionMismatch is returned when an embedding has an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Embedder interface {
	Embeddings(ctx context.Context, text string) (models.EmbeddingResponse, error)
	EmbeddingModel() string
}

type Service struct {
	rows backend.Rows
	rpc  backend.Caller
	ai   Embedder
	log  *zap.Logger
}

// New wires the probes. Any dependency a probe does not use may be nil.
func New(rows backend.Rows, rpc backend.Caller, ai Embedder, log *zap.Logger) *Service {
	return &Service{rows: rows, rpc: rpc, ai: ai, log: log}
}

type PingResult struct {
	Table   string          `json:"table"`
	Rows    int             `json:"rows"`
	Latency time.Duration   `json:"latency_ns"`
	Sample  json.RawMessage `json:"sample,omitempty"`
}

func (r PingResult) String() string {
	s := fmt.Sprintf("query ok: table=%s rows=%d latency=%s", r.Table, r.Rows, r.Latency.Round(time.Millisecond))
	if len(r.Sample) > 0 {
		s += "\n" + string(r.Sample)
	}
	return s
}

// Ping selects a single row from table to prove the connection and key work.
func (s *Service) Ping(table string) (*PingResult, error) {
	if table == "" {
		table = ChunksTable
	}
	start := time.Now()
	var rows []json.RawMessage
	if err := s.rows.Select(backend.Query{Table: table, Limit: 1}, &rows); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	res := &PingResult{Table: table, Rows: len(rows), Latency: time.Since(start)}
	if len(rows) > 0 {
		res.Sample = rows[0]
	}
	s.log.Info("ping", zap.String("table", table), zap.Int("rows", res.Rows), zap.Duration("latency", res.Latency))
	return res, nil
}

type EmbeddingCheck struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Preview    []float64 `json:"preview"`
	Expected   int       `json:"expected,omitempty"`
}

func (c EmbeddingCheck) Header() []string { return []string{"FIELD", "VALUE"} }

func (c EmbeddingCheck) Rows() [][]string {
	parts := make([]string, 0, len(c.Preview))
	for _, v := range c.Preview {
		parts = append(parts, strconv.FormatFloat(v, 'f', 6, 64))
	}
	rows := [][]string{
		{"model", c.Model},
		{"dimensions", strconv.Itoa(c.Dimensions)},
		{"preview", "[" + strings.Join(parts, ", ") + ", ...]"},
	}
	if c.Expected > 0 {
		rows = append(rows, []string{"expected", strconv.Itoa(c.Expected)})
	}
	return rows
}

// CheckEmbedding embeds text and reports the vector size. When expectDim is
// set and differs, the check is returned together with ErrDimensionMismatch.
func (s *Service) CheckEmbedding(ctx context.Context, text string, expectDim int) (*EmbeddingCheck, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	check := &EmbeddingCheck{
		Model:      s.ai.EmbeddingModel(),
		Dimensions: len(vec),
		Preview:    vec[:min(5, len(vec))],
		Expected:   expectDim,
	}
	s.log.Info("embedding generated", zap.String("model", check.Model), zap.Int("dimensions", check.Dimensions))
	if expectDim > 0 && expectDim != len(vec) {
		return check, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), expectDim)
	}
	return check, nil
}

type ChunkStatus struct {
	Total             int64 `json:"total"`
	WithEmbeddings    int64 `json:"with_embeddings"`
	WithoutEmbeddings int64 `json:"without_embeddings"`
	SampleDimensions  int   `json:"sample_dimensions,omitempty"`
}

func (c ChunkStatus) Healthy() bool {
	return c.WithoutEmbeddings == 0
}

func (c ChunkStatus) Header() []string { return []string{"CHECK", "VALUE"} }

func (c ChunkStatus) Rows() [][]string {
	verdict := "ok: all chunks have embeddings"
	if !c.Healthy() {
		verdict = fmt.Sprintf("problem: %d chunks are missing embeddings, vector search cannot find them", c.WithoutEmbeddings)
	}
	rows := [][]string{
		{"total chunks", strconv.FormatInt(c.Total, 10)},
		{"with embeddings", strconv.FormatInt(c.WithEmbeddings, 10)},
		{"without embeddings", strconv.FormatInt(c.WithoutEmbeddings, 10)},
	}
	if c.SampleDimensions > 0 {
		rows = append(rows, []string{"sample dimensions", strconv.Itoa(c.SampleDimensions)})
	}
	return append(rows, []string{"verdict", verdict})
}

// ChunkStatus counts document chunks with and without embeddings and reads
// the vector size of one embedded chunk.
func (s *Service) ChunkStatus() (*ChunkStatus, error) {
	count := func(filters ...backend.Filter) (int64, error) {
		return s.rows.Count(backend.Query{Table: ChunksTable, Columns: "id", Filters: filters})
	}

	var st ChunkStatus
	var err error
	if st.Total, err = count(); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if st.WithEmbeddings, err = count(backend.NotNull("embedding")); err != nil {
		return nil, fmt.Errorf("failed to count embedded chunks: %w", err)
	}
	if st.WithoutEmbeddings, err = count(backend.IsNull("embedding")); err != nil {
		return nil, fmt.Errorf("failed to count chunks without embeddings: %w", err)
	}

	if st.WithEmbeddings > 0 {
		var sample models.DocumentChunk
		err := s.rows.Single(backend.Query{
			Table:   ChunksTable,
			Columns: "id,embedding",
			Filters: []backend.Filter{backend.NotNull("embedding")},
		}, &sample)
		if err != nil {
			s.log.Warn("could not read a sample embedding", zap.Error(err))
		} else {
			st.SampleDimensions = len(sample.Embedding)
		}
	}

	if !st.Healthy() {
		s.log.Warn("chunks missing embeddings", zap.Int64("count", st.WithoutEmbeddings))
	}
	return &st, nil
}

type Hits []models.DocumentChunk

func (h Hits) Header() []string { return []string{"#", "DOCUMENT", "PAGE", "CONTENT"} }

func (h Hits) Rows() [][]string {
	rows := make([][]string, 0, len(h))
	for i, c := range h {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.DocumentID, strconv.Itoa(c.PageNumber), render.Preview(c.Content, 200)})
	}
	return rows
}

// Grep finds chunks whose content contains term, ignoring case.
func (s *Service) Grep(term string, limit int) (Hits, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("search term is required")
	}
	if limit <= 0 {
		limit = 10
	}

	var hits Hits
	err := s.rows.Select(backend.Query{
		Table:   ChunksTable,
		Columns: "id,document_id,page_number,content",
		Filters: []backend.Filter{backend.Ilike("content", "%"+term+"%")},
		Limit:   limit,
	}, &hits)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	s.log.Info("chunk search", zap.String("term", term), zap.Int("hits", len(hits)))
	return hits, nil
}

type Matches []models.ChunkMatch

func (m Matches) Header() []string { return []string{"#", "SIMILARITY", "DOCUMENT", "PAGE", "CONTENT"} }

func (m Matches) Rows() [][]string {
	rows := make([][]string, 0, len(m))
	for i, c := range m {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(c.Similarity, 'f', 4, 64),
			c.DocumentID,
			strconv.Itoa(c.PageNumber),
			render.Preview(c.Content, 200),
		})
	}
	return rows
}

// Match embeds query and runs the remote similarity search function.
func (s *Service) Match(ctx context.Context, query string, threshold float64, count int) (Matches, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %v", threshold)
	}
	if count <= 0 {
		count = 5
	}
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var matches Matches
	err = s.rpc.Rpc(MatchFunction, map[string]any{
		"query_embedding": vec,
		"match_threshold": threshold,
		"match_count":     count,
	}, &matches)
	if err != nil {
		return nil, err
	}
	s.log.Info("remote match", zap.Int("matches", len(matches)), zap.Float64("threshold", threshold))
	return matches, nil
}

func (s *Service) embed(ctx context.Context, text string) (models.Embedding, error) {
	if s.ai == nil {
		return nil, errors.New("embeddings service is not configured")
	}
	res, err := s.ai.Embeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	vec := res.GetEmbeddings()
	if vec == nil || len(*vec) == 0 {
		return nil, errors.New("embedding is empty")
	}
	return *vec, nil
}

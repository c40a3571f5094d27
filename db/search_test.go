package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchWithSimilarity(t *testing.T) {
	db := openTestDB(t)
	for _, c := range []struct {
		id  string
		vec []float64
	}{
		{"x", []float64{1, 0, 0, 0}},
		{"near-x", []float64{0.9, 0.1, 0, 0}},
		{"y", []float64{0, 1, 0, 0}},
		{"z", []float64{0, 0, 1, 0}},
	} {
		_, err := SaveChunk(db, chunk(c.id, c.vec...))
		require.NoError(t, err)
	}

	results, err := SearchWithSimilarity(db, []float32{1, 0, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "x", results[0].RemoteID)
	assert.Equal(t, "near-x", results[1].RemoteID)
	assert.InDelta(t, 1.0, results[0].Distance, 1e-5)
	assert.Equal(t, "content x", results[0].Content)
}

func TestFilterByDistance(t *testing.T) {
	results := []SearchResult{
		{ID: 1, Distance: 0.10},
		{ID: 2, Distance: 0.12},
		{ID: 3, Distance: 0.50},
		{ID: 4, Distance: 0.55},
	}

	tests := []struct {
		name string
		opts SearchOptions
		want []int64
	}{
		{name: "plain threshold", opts: SearchOptions{MaxDistance: 0.52, MaxResults: 10}, want: []int64{1, 2, 3}},
		{name: "adaptive gap", opts: SearchOptions{MaxDistance: 0.8, MaxResults: 10, UseAdaptive: true}, want: []int64{1, 2}},
		{name: "max results", opts: SearchOptions{MaxDistance: 0.8, MaxResults: 1}, want: []int64{1}},
		{name: "min results", opts: SearchOptions{MaxDistance: 0.01, MinResults: 3, MaxResults: 10}, want: []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []int64
			for _, r := range filterByDistance(results, tt.opts) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/andrejsstepanovs/supadiag/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := SetupDatabase(t.TempDir(), "test", testDims)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func chunk(id string, vec ...float64) models.DocumentChunk {
	return models.DocumentChunk{
		ID:         models.RowID(id),
		DocumentID: "doc-" + id,
		PageNumber: 1,
		Content:    "content " + id,
		Embedding:  models.Embedding(vec),
	}
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestUpsertMirror(t *testing.T) {
	db := openTestDB(t)

	testCases := []struct {
		name   string
		mirror models.Mirror
	}{
		{
			name:   "insert new mirror",
			mirror: models.Mirror{Alias: "docs", SourceURL: "https://a.supabase.co", Table: "document_chunks", Model: "m1", Dimensions: 4},
		},
		{
			name:   "update existing mirror",
			mirror: models.Mirror{Alias: "docs", SourceURL: "https://b.supabase.co", Table: "document_chunks", Model: "m2", Dimensions: 4},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, UpsertMirror(db, tc.mirror))

			got, err := GetMirror(db, tc.mirror.Alias)
			require.NoError(t, err)
			assert.Equal(t, tc.mirror, *got)
		})
	}

	assert.Equal(t, 1, count(t, db, "mirrors"))
}

func TestGetMirror_NotFound(t *testing.T) {
	db := openTestDB(t)
	m, err := GetMirror(db, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Nil(t, m)
}

func TestSaveAndDeleteChunk(t *testing.T) {
	db := openTestDB(t)

	id, err := SaveChunk(db, chunk("r1", 1, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = SaveChunk(db, chunk("r2", 0, 1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db, "chunks"))
	assert.Equal(t, 2, count(t, db, "chunk_vectors"))

	_, err = SaveChunk(db, chunk("r1", 0, 0, 1, 0))
	assert.Error(t, err, "remote ids are unique")
	assert.Equal(t, 2, count(t, db, "chunk_vectors"), "failed insert leaves no vector behind")

	_, err = SaveChunk(db, chunk("r3", 1, 2))
	assert.Error(t, err, "dimension mismatch")
	assert.Equal(t, 2, count(t, db, "chunks"))

	require.NoError(t, DeleteChunk(db, id))
	assert.Equal(t, 1, count(t, db, "chunks"))
	assert.Equal(t, 1, count(t, db, "chunk_vectors"))

	ids, err := GetRemoteIDs(db)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"r2": 2}, ids)
}

func TestDeleteVectorData(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, UpsertMirror(db, models.Mirror{Alias: "docs", SourceURL: "u", Table: "t", Model: "m", Dimensions: 4}))
	_, err := SaveChunk(db, chunk("r1", 1, 0, 0, 0))
	require.NoError(t, err)

	require.NoError(t, DeleteVectorData(db))
	assert.Equal(t, 0, count(t, db, "chunks"))
	assert.Equal(t, 0, count(t, db, "chunk_vectors"))
	assert.Equal(t, 1, count(t, db, "mirrors"))
}

func TestGetMirroredChunks(t *testing.T) {
	db := openTestDB(t)

	chunks, err := GetMirroredChunks(db)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = db.Exec("INSERT INTO chunks (remote_id, created_at) VALUES (?, ?)", "a", "2023-01-01 10:00:00")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO chunks (remote_id, created_at) VALUES (?, ?)", "b", "2023-01-01 09:00:00")
	require.NoError(t, err)

	chunks, err = GetMirroredChunks(db)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b", chunks[0].RemoteID)
	assert.Equal(t, int64(2), chunks[0].ID)

	expected, _ := time.Parse(time.DateTime, "2023-01-01 09:00:00")
	assert.Equal(t, expected.Unix(), chunks[0].CreatedAt.Unix())
}

func TestHasVectorsAndRemove(t *testing.T) {
	dir := t.TempDir()

	db, err := SetupDatabase(dir, "lazy", 0)
	require.NoError(t, err)
	has, err := HasVectors(db)
	require.NoError(t, err)
	assert.False(t, has)
	db.Close()

	db, err = SetupDatabase(dir, "lazy", 3)
	require.NoError(t, err)
	has, err = HasVectors(db)
	require.NoError(t, err)
	assert.True(t, has)
	db.Close()

	require.NoError(t, RemoveDatabase(dir, "lazy"))
	require.NoError(t, RemoveDatabase(dir, "lazy"))
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andrejsstepanovs/supadiag/models"
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoVectors is returned when a mirror has never been built.
var ErrNoVectors = errors.New("mirror has no vector table, run mirror build first")

// Path is the database file of a mirror alias.
func Path(dir, alias string) string {
	return filepath.Join(dir, alias+".db")
}

// InitDB opens (creating if needed) a mirror database. The vector table is
// only created when dimensions is positive; an existing one is kept as is.
func InitDB(path string, dimensions int) (*sql.DB, error) {
	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating chunks table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mirrors (
			alias TEXT PRIMARY KEY NOT NULL,
			source_url TEXT NOT NULL,
			table_name TEXT NOT NULL,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating mirrors table: %w", err)
	}

	if dimensions > 0 {
		_, err = db.Exec(fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
				embedding float[%d] distance_metric=cosine
			);
		`, dimensions))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error creating chunk_vectors table: %w", err)
		}
	}

	return db, nil
}

// SetupDatabase opens the mirror for alias inside dir.
func SetupDatabase(dir, alias string, dimensions int) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror dir: %w", err)
	}
	dbConn, err := InitDB(Path(dir, alias), dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, nil
}

// RemoveDatabase deletes the mirror file of alias. A missing file is not an error.
func RemoveDatabase(dir, alias string) error {
	err := os.Remove(Path(dir, alias))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove mirror: %w", err)
	}
	return nil
}

// SaveChunk stores a chunk and its vector under the same rowid.
func SaveChunk(db *sql.DB, chunk models.DocumentChunk) (int64, error) {
	embeddingBytes, err := sqlite_vec.SerializeFloat32(chunk.Embedding.Float32())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize embedding: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.Exec(
		"INSERT INTO chunks (remote_id, document_id, page_number, content) VALUES (?, ?, ?, ?)",
		string(chunk.ID), chunk.DocumentID, chunk.PageNumber, chunk.Content,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	_, err = tx.Exec("INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, vec_f32(?))", lastID, embeddingBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into chunk_vectors: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return lastID, nil
}

func DeleteChunk(db *sql.DB, id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM chunk_vectors WHERE rowid = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete vector for chunk %d: %w", id, err)
	}

	_, err = tx.Exec("DELETE FROM chunks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %d: %w", id, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteVectorData removes every chunk and vector, keeping mirror metadata.
func DeleteVectorData(db *sql.DB) error {
	if _, err := db.Exec("DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to delete from chunks: %w", err)
	}
	if _, err := db.Exec("DELETE FROM chunk_vectors"); err != nil {
		return fmt.Errorf("failed to delete from chunk_vectors: %w", err)
	}
	return nil
}

func UpsertMirror(db *sql.DB, mirror models.Mirror) error {
	query := `
		INSERT INTO mirrors (alias, source_url, table_name, model, dimensions) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET source_url = excluded.source_url, table_name = excluded.table_name,
			model = excluded.model, dimensions = excluded.dimensions;
	`
	_, err := db.Exec(query, mirror.Alias, mirror.SourceURL, mirror.Table, mirror.Model, mirror.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to upsert mirror '%s': %w", mirror.Alias, err)
	}
	return nil
}

// GetMirror returns sql.ErrNoRows when alias was never built.
func GetMirror(db *sql.DB, alias string) (*models.Mirror, error) {
	row := db.QueryRow(`SELECT alias, source_url, table_name, model, dimensions FROM mirrors WHERE alias = ?`, alias)

	var mirror models.Mirror
	err := row.Scan(&mirror.Alias, &mirror.SourceURL, &mirror.Table, &mirror.Model, &mirror.Dimensions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get mirror '%s': %w", alias, err)
	}
	return &mirror, nil
}

// GetMirroredChunks lists local chunks, oldest first.
func GetMirroredChunks(db *sql.DB) ([]models.MirroredChunk, error) {
	rows, err := db.Query(`SELECT id, remote_id, created_at FROM chunks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.MirroredChunk
	for rows.Next() {
		var c models.MirroredChunk
		if err := rows.Scan(&c.ID, &c.RemoteID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during chunk row iteration: %w", err)
	}
	return chunks, nil
}

// GetRemoteIDs maps every mirrored remote id to its local id.
func GetRemoteIDs(db *sql.DB) (map[string]int64, error) {
	ids := make(map[string]int64)

	rows, err := db.Query("SELECT id, remote_id FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var remoteID string
		if err := rows.Scan(&id, &remoteID); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids[remoteID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during chunk id iteration: %w", err)
	}
	return ids, nil
}

// HasVectors reports whether the vector table exists.
func HasVectors(db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'chunk_vectors'`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

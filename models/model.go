package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Project is a row of the projects table.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is a row of the tasks table.
type Task struct {
	ID          string     `json:"id,omitempty"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	DueDate     string     `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Profile is a user account row. Authentication data itself lives in the auth service.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Proposal is a row of the proposals table.
type Proposal struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	AuthorID  string          `json:"author_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Acceptance records a user accepting a proposal.
type Acceptance struct {
	ID         string     `json:"id,omitempty"`
	ProposalID string     `json:"proposal_id"`
	UserID     string     `json:"user_id"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// DocumentChunk is a slice of an uploaded document used for retrieval.
type DocumentChunk struct {
	ID         RowID     `json:"id"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	Embedding  Embedding `json:"embedding,omitempty"`
}

// ChunkMatch is one row returned by the match_documents function.
type ChunkMatch struct {
	ID         RowID   `json:"id"`
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Mirror stores metadata about a local copy of the document chunks.
type Mirror struct {
	Alias      string
	SourceURL  string
	Table      string
	Model      string
	Dimensions int
}

// MirroredChunk is a chunk record in the local mirror database.
type MirroredChunk struct {
	ID        int64
	RemoteID  string
	CreatedAt time.Time
}

// RowID holds a primary key that may be a bigint or a uuid on the remote side.
type RowID string

func (id *RowID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RowID(n.String())
	return nil
}

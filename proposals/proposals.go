// Package proposals inspects proposals and their acceptances.
package proposals

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/andrejsstepanovs/supadiag/models"
	"go.uber.org/zap"
)

const (
	proposalsTable   = "proposals"
	acceptancesTable = "acceptances"

	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

var (
	ErrNotPending      = errors.New("proposal is not pending")
	ErrAlreadyAccepted = errors.New("proposal already accepted")
)

// Statuses lists the states reported by Stats.
var Statuses = []string{StatusPending, StatusAccepted, StatusRejected}

type Service struct {
	rows backend.Rows
	log  *zap.Logger
	now  func() time.Time
}

func New(rows backend.Rows, log *zap.Logger) *Service {
	return &Service{rows: rows, log: log, now: time.Now}
}

type ListOptions struct {
	Status  string
	Project string
	Limit   int
}

type List []models.Proposal

func (l List) Header() []string {
	return []string{"ID", "TITLE", "PROJECT", "AMOUNT", "STATUS", "CREATED"}
}

func (l List) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{p.ID, p.Title, p.ProjectID, p.Amount.StringFixed(2), p.Status, p.CreatedAt.Format(time.DateTime)})
	}
	return rows
}

func (s *Service) List(opts ListOptions) (List, error) {
	q := backend.Query{
		Table:   proposalsTable,
		Columns: "id,project_id,author_id,title,amount,status,created_at",
		OrderBy: "created_at",
		Limit:   opts.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if opts.Status != "" {
		q.Filters = append(q.Filters, backend.Eq("status", opts.Status))
	}
	if opts.Project != "" {
		q.Filters = append(q.Filters, backend.Eq("project_id", opts.Project))
	}

	var list List
	if err := s.rows.Select(q, &list); err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return list, nil
}

type Detail struct {
	Proposal   models.Proposal   `json:"proposal"`
	Acceptance models.Acceptance `json:"acceptance"`
}

func (d Detail) Header() []string { return []string{"FIELD", "VALUE"} }

func (d Detail) Rows() [][]string {
	acceptedBy, acceptedAt := "-", "-"
	if d.Acceptance.UserID != "" {
		acceptedBy = d.Acceptance.UserID
	}
	if d.Acceptance.AcceptedAt != nil {
		acceptedAt = d.Acceptance.AcceptedAt.Format(time.DateTime)
	}
	return [][]string{
		{"id", d.Proposal.ID},
		{"title", d.Proposal.Title},
		{"project", d.Proposal.ProjectID},
		{"author", d.Proposal.AuthorID},
		{"amount", d.Proposal.Amount.StringFixed(2)},
		{"status", d.Proposal.Status},
		{"accepted by", acceptedBy},
		{"accepted at", acceptedAt},
	}
}

// Show fetches a proposal and its acceptance. A missing or unreadable
// acceptance is logged and left zero-valued.
func (s *Service) Show(id string) (*Detail, error) {
	var p models.Proposal
	err := s.rows.Single(backend.Query{
		Table:   proposalsTable,
		Filters: []backend.Filter{backend.Eq("id", id)},
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proposal %s: %w", id, err)
	}

	d := &Detail{Proposal: p}
	acc, err := s.acceptance(id)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		s.log.Debug("proposal has no acceptance", zap.String("proposal", id))
	case err != nil:
		s.log.Warn("acceptance lookup failed, using zero values", zap.String("proposal", id), zap.Error(err))
	default:
		d.Acceptance = *acc
	}
	return d, nil
}

// Accept records userID accepting a pending proposal and marks it accepted.
func (s *Service) Accept(proposalID, userID string) (*Detail, error) {
	if strings.TrimSpace(proposalID) == "" || strings.TrimSpace(userID) == "" {
		return nil, errors.New("proposal id and user id are required")
	}

	var p models.Proposal
	err := s.rows.Single(backend.Query{
		Table:   proposalsTable,
		Filters: []backend.Filter{backend.Eq("id", proposalID)},
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proposal %s: %w", proposalID, err)
	}

	if _, err := s.acceptance(proposalID); err == nil {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, ErrAlreadyAccepted)
	} else if !errors.Is(err, backend.ErrNotFound) {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("proposal %s has status %q: %w", proposalID, p.Status, ErrNotPending)
	}

	now := s.now().UTC()
	var inserted []models.Acceptance
	err = s.rows.Insert(acceptancesTable, models.Acceptance{ProposalID: proposalID, UserID: userID, AcceptedAt: &now}, &inserted)
	if err != nil {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}
	if len(inserted) == 0 {
		return nil, errors.New("acceptance insert returned no row")
	}

	var updated List
	err = s.rows.Update(proposalsTable,
		map[string]any{"status": StatusAccepted},
		[]backend.Filter{backend.Eq("id", proposalID)},
		&updated,
	)
	if err != nil {
		return nil, fmt.Errorf("acceptance %s recorded but proposal status not updated: %w", inserted[0].ID, err)
	}
	if len(updated) > 0 {
		p = updated[0]
	}

	s.log.Info("proposal accepted", zap.String("proposal", proposalID), zap.String("user", userID))
	return &Detail{Proposal: p, Acceptance: inserted[0]}, nil
}

type Stats map[string]int64

func (st Stats) Header() []string { return []string{"STATUS", "COUNT"} }

func (st Stats) Rows() [][]string {
	rows := make([][]string, 0, len(st))
	for _, status := range append(append([]string{}, Statuses...), "total") {
		if n, ok := st[status]; ok {
			rows = append(rows, []string{status, strconv.FormatInt(n, 10)})
		}
	}
	return rows
}

// Stats counts proposals per status using head-only count queries.
func (s *Service) Stats() (Stats, error) {
	st := Stats{}
	total, err := s.rows.Count(backend.Query{Table: proposalsTable, Columns: "id"})
	if err != nil {
		return nil, fmt.Errorf("failed to count proposals: %w", err)
	}
	st["total"] = total

	for _, status := range Statuses {
		n, err := s.rows.Count(backend.Query{
			Table:   proposalsTable,
			Columns: "id",
			Filters: []backend.Filter{backend.Eq("status", status)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s proposals: %w", status, err)
		}
		st[status] = n
	}
	return st, nil
}

func (s *Service) acceptance(proposalID string) (*models.Acceptance, error) {
	var acc models.Acceptance
	err := s.rows.Single(backend.Query{
		Table:   acceptancesTable,
		Filters: []backend.Filter{backend.Eq("proposal_id", proposalID)},
	}, &acc)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

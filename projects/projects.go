// Package projects holds the project and task diagnostics.
package projects

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
	projectsTable = "projects"
	tasksTable    = "tasks"

	StatusOpen = "open"
	StatusDone = "done"

	DefaultLimit = 20
)

type Service struct {
	rows backend.Rows
	log  *zap.Logger
	now  func() time.Time
}

func New(rows backend.Rows, log *zap.Logger) *Service {
	return &Service{rows: rows, log: log, now: time.Now}
}

type ListOptions struct {
	Owner  string
	Status string
	Limit  int
}

// ProjectList is printed as one row per project.
type ProjectList []models.Project

func (l ProjectList) Header() []string {
	return []string{"ID", "NAME", "OWNER", "STATUS", "CREATED"}
}

func (l ProjectList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{p.ID, p.Name, p.OwnerID, p.Status, p.CreatedAt.Format(time.DateTime)})
	}
	return rows
}

func (s *Service) List(opts ListOptions) (ProjectList, error) {
	q := backend.Query{
		Table:   projectsTable,
		Columns: "id,name,owner_id,status,created_at",
		OrderBy: "created_at",
		Limit:   limitOrDefault(opts.Limit),
	}
	if opts.Owner != "" {
		q.Filters = append(q.Filters, backend.Eq("owner_id", opts.Owner))
	}
	if opts.Status != "" {
		q.Filters = append(q.Filters, backend.Eq("status", opts.Status))
	}

	var list ProjectList
	if err := s.rows.Select(q, &list); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	s.log.Info("projects listed", zap.Int("count", len(list)))
	return list, nil
}

type TaskCounts struct {
	Total int64 `json:"total"`
	Done  int64 `json:"done"`
	Open  int64 `json:"open"`
}

type Detail struct {
	Project models.Project `json:"project"`
	Tasks   TaskCounts     `json:"tasks"`
}

func (d Detail) Header() []string { return []string{"FIELD", "VALUE"} }

func (d Detail) Rows() [][]string {
	return [][]string{
		{"id", d.Project.ID},
		{"name", d.Project.Name},
		{"owner", d.Project.OwnerID},
		{"status", d.Project.Status},
		{"created", d.Project.CreatedAt.Format(time.DateTime)},
		{"tasks total", strconv.FormatInt(d.Tasks.Total, 10)},
		{"tasks done", strconv.FormatInt(d.Tasks.Done, 10)},
		{"tasks open", strconv.FormatInt(d.Tasks.Open, 10)},
	}
}

// Show fetches one project. Task counts are best effort: a failing count is
// logged and reported as zero.
func (s *Service) Show(id string) (*Detail, error) {
	var p models.Project
	err := s.rows.Single(backend.Query{
		Table:   projectsTable,
		Filters: []backend.Filter{backend.Eq("id", id)},
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", id, err)
	}

	counts, err := s.CountTasks(id)
	if err != nil {
		s.log.Warn("task counts unavailable, using zero values", zap.String("project", id), zap.Error(err))
		counts = TaskCounts{}
	}
	return &Detail{Project: p, Tasks: counts}, nil
}

func (s *Service) CountTasks(projectID string) (TaskCounts, error) {
	var counts TaskCounts
	var err error

	base := backend.Eq("project_id", projectID)
	if counts.Total, err = s.rows.Count(backend.Query{Table: tasksTable, Columns: "id", Filters: []backend.Filter{base}}); err != nil {
		return TaskCounts{}, fmt.Errorf("failed to count tasks: %w", err)
	}
	done := []backend.Filter{base, backend.Eq("status", StatusDone)}
	if counts.Done, err = s.rows.Count(backend.Query{Table: tasksTable, Columns: "id", Filters: done}); err != nil {
		return TaskCounts{}, fmt.Errorf("failed to count done tasks: %w", err)
	}
	open := []backend.Filter{base, backend.Neq("status", StatusDone)}
	if counts.Open, err = s.rows.Count(backend.Query{Table: tasksTable, Columns: "id", Filters: open}); err != nil {
		return TaskCounts{}, fmt.Errorf("failed to count open tasks: %w", err)
	}
	return counts, nil
}

func (c TaskCounts) Header() []string { return []string{"TOTAL", "DONE", "OPEN"} }

func (c TaskCounts) Rows() [][]string {
	return [][]string{{
		strconv.FormatInt(c.Total, 10),
		strconv.FormatInt(c.Done, 10),
		strconv.FormatInt(c.Open, 10),
	}}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(kind + " id is required")
	}
	return nil
}

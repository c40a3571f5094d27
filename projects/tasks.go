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

type TaskListOptions struct {
	Status    string
	DueBefore string // YYYY-MM-DD, inclusive
	Limit     int
}

type Tasks []models.Task

func (l Tasks) Header() []string {
	return []string{"ID", "TITLE", "STATUS", "PRIORITY", "DUE"}
}

func (l Tasks) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, t := range l {
		rows = append(rows, []string{t.ID, t.Title, t.Status, strconv.Itoa(t.Priority), t.DueDate})
	}
	return rows
}

func (s *Service) Tasks(projectID string, opts TaskListOptions) (Tasks, error) {
	if err := requireID("project", projectID); err != nil {
		return nil, err
	}
	q := backend.Query{
		Table:     tasksTable,
		Columns:   "id,project_id,title,status,priority,due_date,completed_at,created_at",
		Filters:   []backend.Filter{backend.Eq("project_id", projectID)},
		OrderBy:   "due_date",
		Ascending: true,
		Limit:     limitOrDefault(opts.Limit),
	}
	if opts.Status != "" {
		q.Filters = append(q.Filters, backend.Eq("status", opts.Status))
	}
	if opts.DueBefore != "" {
		if _, err := time.Parse(time.DateOnly, opts.DueBefore); err != nil {
			return nil, fmt.Errorf("invalid due date %q, expected YYYY-MM-DD", opts.DueBefore)
		}
		q.Filters = append(q.Filters, backend.Lte("due_date", opts.DueBefore))
	}

	var list Tasks
	if err := s.rows.Select(q, &list); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return list, nil
}

// AddTask inserts a task after checking that the project exists.
func (s *Service) AddTask(projectID, title string, priority int) (*models.Task, error) {
	if err := s.requireProject(projectID); err != nil {
		return nil, err
	}
	return s.insertTask(models.Task{ProjectID: projectID, Title: title, Priority: priority})
}

// CompleteTask marks a task done. It returns backend.ErrNotFound when no row matched.
func (s *Service) CompleteTask(taskID string) (*models.Task, error) {
	if err := requireID("task", taskID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var updated Tasks
	err := s.rows.Update(tasksTable,
		map[string]any{"status": StatusDone, "completed_at": now},
		[]backend.Filter{backend.Eq("id", taskID)},
		&updated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID, backend.ErrNotFound)
	}
	s.log.Info("task completed", zap.String("task", taskID))
	return &updated[0], nil
}

// ImportTaskList inserts every item of a task_list payload into the project.
// Items are inserted in order; the first failure stops the import and the
// tasks inserted so far are returned with the error.
func (s *Service) ImportTaskList(projectID string, list models.TaskList) (Tasks, error) {
	if !strings.EqualFold(list.Type, "task_list") {
		return nil, fmt.Errorf("payload type %q is not a task_list", list.Type)
	}
	if err := s.requireProject(projectID); err != nil {
		return nil, err
	}

	var created Tasks
	for i, item := range list.Items {
		task, err := s.insertTask(models.Task{
			ProjectID: projectID,
			Title:     item.Title,
			Priority:  item.Priority,
			DueDate:   item.DueDate,
		})
		if err != nil {
			return created, fmt.Errorf("item %d: %w", i+1, err)
		}
		created = append(created, *task)
	}
	return created, nil
}

func (s *Service) insertTask(task models.Task) (*models.Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return nil, errors.New("task title is required")
	}
	if task.DueDate != "" {
		if _, err := time.Parse(time.DateOnly, task.DueDate); err != nil {
			return nil, fmt.Errorf("invalid due date %q, expected YYYY-MM-DD", task.DueDate)
		}
	}
	task.Status = StatusOpen

	var created Tasks
	if err := s.rows.Insert(tasksTable, task, &created); err != nil {
		return nil, fmt.Errorf("failed to add task: %w", err)
	}
	if len(created) == 0 {
		return nil, errors.New("insert returned no row")
	}
	s.log.Info("task added", zap.String("task", created[0].ID), zap.String("project", task.ProjectID))
	return &created[0], nil
}

func (s *Service) requireProject(projectID string) error {
	if err := requireID("project", projectID); err != nil {
		return err
	}
	var p models.Project
	err := s.rows.Single(backend.Query{
		Table:   projectsTable,
		Columns: "id",
		Filters: []backend.Filter{backend.Eq("id", projectID)},
	}, &p)
	if err != nil {
		return fmt.Errorf("project %s: %w", projectID, err)
	}
	return nil
}

// Package chat asks the chat model for structured output and reports what
// the extractor finds in the reply.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrejsstepanovs/supadiag/extract"
	"github.com/andrejsstepanovs/supadiag/models"
	"github.com/andrejsstepanovs/supadiag/projects"
	"github.com/andrejsstepanovs/supadiag/render"
	"go.uber.org/zap"
)

// DefaultSystem asks for task lists in fenced json blocks.
const DefaultSystem = "You are a project assistant. When asked for tasks, answer with a short explanation " +
	"followed by a fenced ```json block containing " +
	`{"type":"task_list","items":[{"title":"...","priority":1,"due_date":"YYYY-MM-DD"}]}.`

type Chatter interface {
	Chat(ctx context.Context, system, prompt string) (models.ChatResponse, error)
}

type TaskImporter interface {
	ImportTaskList(projectID string, list models.TaskList) (projects.Tasks, error)
}

type Service struct {
	ai    Chatter
	tasks TaskImporter
	log   *zap.Logger
}

// New wires the service. tasks may be nil when nothing is saved.
func New(ai Chatter, tasks TaskImporter, log *zap.Logger) *Service {
	return &Service{ai: ai, tasks: tasks, log: log}
}

type AskOptions struct {
	System    string
	Repair    bool
	SaveTasks string // project id; task_list payloads are inserted when set
}

// Candidate is one fenced block found in a reply.
type Candidate struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Offset int    `json:"offset"`
	Value  any    `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
	Saved  int    `json:"saved_tasks,omitempty"`
}

type Report struct {
	Source     string      `json:"source,omitempty"`
	Model      string      `json:"model,omitempty"`
	Reply      string      `json:"reply,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Parsed counts the candidates that decoded.
func (r Report) Parsed() int {
	n := 0
	for _, c := range r.Candidates {
		if c.Error == "" {
			n++
		}
	}
	return n
}

// Reports is printed as one row per candidate across all sources.
type Reports []Report

func (rs Reports) Header() []string {
	return []string{"SOURCE", "#", "LABEL", "OFFSET", "RESULT"}
}

func (rs Reports) Rows() [][]string {
	var rows [][]string
	for _, r := range rs {
		source := r.Source
		if source == "" {
			source = r.Model
		}
		if len(r.Candidates) == 0 {
			rows = append(rows, []string{source, "-", "-", "-", "no candidates"})
			continue
		}
		for _, c := range r.Candidates {
			label := c.Label
			if label == "" {
				label = "(none)"
			}
			rows = append(rows, []string{source, strconv.Itoa(c.Index), label, strconv.Itoa(c.Offset), describe(c)})
		}
	}
	return rows
}

// Inspect runs the extractor over text and parses every candidate.
func Inspect(source, text string, opts ...extract.Option) Report {
	report := Report{Source: source, Candidates: []Candidate{}}
	for i, res := range extract.ParseAll(text, opts...) {
		c := Candidate{Index: i + 1, Label: res.Label, Offset: res.Offset, Value: res.Value}
		if !res.OK() {
			c.Value = nil
			c.Error = res.Err.Error()
		}
		report.Candidates = append(report.Candidates, c)
	}
	return report
}

// Ask sends prompt to the chat model and inspects the reply.
func (s *Service) Ask(ctx context.Context, prompt string, opts AskOptions) (*Report, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}
	if opts.SaveTasks != "" && s.tasks == nil {
		return nil, errors.New("saving tasks needs the data service")
	}
	system := opts.System
	if system == "" {
		system = DefaultSystem
	}

	resp, err := s.ai.Chat(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	reply := resp.Content()
	if reply == "" {
		return nil, errors.New("chat response has no content")
	}
	s.log.Debug("chat reply", zap.String("model", resp.Model), zap.Int("tokens", resp.Usage.TotalTokens))

	var extractOpts []extract.Option
	if opts.Repair {
		extractOpts = append(extractOpts, extract.WithRepair())
	}
	report := Inspect("", reply, extractOpts...)
	report.Model = resp.Model
	report.Reply = reply
	s.log.Info("reply inspected", zap.Int("candidates", len(report.Candidates)), zap.Int("parsed", report.Parsed()))

	if opts.SaveTasks != "" {
		s.saveTasks(opts.SaveTasks, &report)
	}
	return &report, nil
}

// saveTasks imports every parsed task_list candidate. Import failures are
// recorded on the candidate and do not stop the remaining ones.
func (s *Service) saveTasks(projectID string, report *Report) {
	for i := range report.Candidates {
		c := &report.Candidates[i]
		if c.Error != "" {
			continue
		}
		list, ok := asTaskList(c.Value)
		if !ok {
			continue
		}
		created, err := s.tasks.ImportTaskList(projectID, list)
		c.Saved = len(created)
		if err != nil {
			c.Error = "save failed: " + err.Error()
			s.log.Warn("task import failed", zap.Int("candidate", c.Index), zap.Error(err))
			continue
		}
		s.log.Info("tasks saved", zap.Int("candidate", c.Index), zap.Int("count", c.Saved))
	}
}

func asTaskList(v any) (models.TaskList, bool) {
	obj, ok := v.(map[string]any)
	if !ok || !strings.EqualFold(fmt.Sprint(obj["type"]), "task_list") {
		return models.TaskList{}, false
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return models.TaskList{}, false
	}
	var list models.TaskList
	if err := json.Unmarshal(raw, &list); err != nil {
		return models.TaskList{}, false
	}
	return list, true
}

func describe(c Candidate) string {
	if c.Error != "" {
		return "error: " + c.Error
	}
	var kind string
	switch v := c.Value.(type) {
	case map[string]any:
		kind = fmt.Sprintf("object, %d keys", len(v))
		if t, ok := v["type"].(string); ok {
			kind += ", type " + t
		}
	case []any:
		kind = fmt.Sprintf("array, %d items", len(v))
	default:
		kind = fmt.Sprintf("%T", v)
	}
	if c.Saved > 0 {
		kind += fmt.Sprintf(", %d tasks saved", c.Saved)
	}
	preview := fmt.Sprintf("%v", c.Value)
	if raw, err := json.Marshal(c.Value); err == nil {
		preview = string(raw)
	}
	return "ok (" + kind + ") " + render.Preview(preview, 60)
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/andrejsstepanovs/supadiag/projects"
)

func newProjectsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect projects",
	}

	var listOpts projects.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleProjectsList(listOpts)
		},
	}
	list.Flags().StringVar(&listOpts.Owner, "owner", "", "only projects owned by this user id")
	list.Flags().StringVar(&listOpts.Status, "status", "", "only projects with this status")
	list.Flags().IntVar(&listOpts.Limit, "limit", projects.DefaultLimit, "maximum rows")

	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its task counts",
		Args:  cobra.ExactArgs(1),
		RunE:  app.handleProjectsShow,
	}

	cmd.AddCommand(list, show)
	return cmd
}

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and change project tasks",
	}

	var listOpts projects.TaskListOptions
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List tasks of a project ordered by due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleTasksList(args[0], listOpts)
		},
	}
	list.Flags().StringVar(&listOpts.Status, "status", "", "only tasks with this status")
	list.Flags().StringVar(&listOpts.DueBefore, "due-before", "", "only tasks due on or before this date (YYYY-MM-DD)")
	list.Flags().IntVar(&listOpts.Limit, "limit", projects.DefaultLimit, "maximum rows")

	count := &cobra.Command{
		Use:   "count <project-id>",
		Short: "Count total, done and open tasks",
		Args:  cobra.ExactArgs(1),
		RunE:  app.handleTasksCount,
	}

	var priority int
	add := &cobra.Command{
		Use:   "add <project-id> <title>",
		Short: "Add a task to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleTasksAdd(args[0], args[1], priority)
		},
	}
	add.Flags().IntVar(&priority, "priority", 0, "task priority")

	done := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Mark a task as done",
		Args:  cobra.ExactArgs(1),
		RunE:  app.handleTasksDone,
	}

	cmd.AddCommand(list, count, add, done)
	return cmd
}

func (a *App) projects() (*projects.Service, error) {
	rows, err := a.backend(true)
	if err != nil {
		return nil, err
	}
	return projects.New(rows, a.log), nil
}

func (a *App) handleProjectsList(opts projects.ListOptions) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	list, err := svc.List(opts)
	if err != nil {
		return err
	}
	return a.print(list)
}

func (a *App) handleProjectsShow(cmd *cobra.Command, args []string) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	detail, err := svc.Show(args[0])
	if err != nil {
		return err
	}
	return a.print(detail)
}

func (a *App) handleTasksList(projectID string, opts projects.TaskListOptions) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	tasks, err := svc.Tasks(projectID, opts)
	if err != nil {
		return err
	}
	return a.print(tasks)
}

func (a *App) handleTasksCount(cmd *cobra.Command, args []string) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	counts, err := svc.CountTasks(args[0])
	if err != nil {
		return err
	}
	return a.print(counts)
}

func (a *App) handleTasksAdd(projectID, title string, priority int) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	task, err := svc.AddTask(projectID, title, priority)
	if err != nil {
		return err
	}
	return a.print(projects.Tasks{*task})
}

func (a *App) handleTasksDone(cmd *cobra.Command, args []string) error {
	svc, err := a.projects()
	if err != nil {
		return err
	}
	task, err := svc.CompleteTask(args[0])
	if err != nil {
		return err
	}
	return a.print(projects.Tasks{*task})
}

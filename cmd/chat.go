package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andrejsstepanovs/supadiag/chat"
	"github.com/andrejsstepanovs/supadiag/extract"
	"github.com/andrejsstepanovs/supadiag/file"
	"github.com/andrejsstepanovs/supadiag/projects"
	"github.com/andrejsstepanovs/supadiag/render"
)

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat completion diagnostics",
	}

	var opts chat.AskOptions
	ask := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a prompt and report every fenced JSON block in the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleChatAsk(cmd, strings.Join(args, " "), opts)
		},
	}
	ask.Flags().StringVar(&opts.System, "system", "", "system prompt (default asks for a task_list block)")
	ask.Flags().BoolVar(&opts.Repair, "repair", false, "repair malformed JSON before giving up on a block")
	ask.Flags().StringVar(&opts.SaveTasks, "save-tasks", "", "insert task_list items into this project id")

	cmd.AddCommand(ask)
	return cmd
}

func newExtractCmd(app *App) *cobra.Command {
	var repair, requireLabel bool
	var labels []string
	cmd := &cobra.Command{
		Use:   "extract <path|->",
		Short: "Extract fenced JSON blocks from stdin, a file or every transcript under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []extract.Option
			if len(labels) > 0 {
				opts = append(opts, extract.WithLabels(labels...))
			}
			if requireLabel {
				opts = append(opts, extract.RequireLabel())
			}
			if repair {
				opts = append(opts, extract.WithRepair())
			}
			return app.handleExtract(args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "repair malformed JSON before giving up on a block")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "accepted fence labels (default json)")
	cmd.Flags().BoolVar(&requireLabel, "require-label", false, "skip fences without a label")
	return cmd
}

func (a *App) handleChatAsk(cmd *cobra.Command, prompt string, opts chat.AskOptions) error {
	ai, err := a.ai()
	if err != nil {
		return err
	}

	var tasks chat.TaskImporter
	if opts.SaveTasks != "" {
		rows, err := a.backend(true)
		if err != nil {
			return err
		}
		tasks = projects.New(rows, a.log)
	}

	report, err := chat.New(ai, tasks, a.log).Ask(cmd.Context(), prompt, opts)
	if err != nil {
		return err
	}

	if a.printer.Format() == render.FormatTable {
		if err := a.print(report.Reply + "\n"); err != nil {
			return err
		}
	}
	return a.print(chat.Reports{*report})
}

func (a *App) handleExtract(path string, opts []extract.Option) error {
	sources, err := file.Collect(path, a.stdin, a.log)
	if err != nil {
		return err
	}

	reports := make(chat.Reports, 0, len(sources))
	for _, src := range sources {
		if _, err := extract.Scan(src.Content, opts...); err != nil {
			a.log.Warn("skipping source", zap.String("source", src.Name), zap.Error(err))
			continue
		}
		report := chat.Inspect(src.Name, string(src.Content), opts...)
		a.log.Debug("source inspected",
			zap.String("source", src.Name),
			zap.Int("candidates", len(report.Candidates)),
			zap.Int("parsed", report.Parsed()))
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no readable input found in %s", path)
	}
	return a.print(reports)
}

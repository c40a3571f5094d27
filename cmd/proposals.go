package cmd

import (
	"github.com/spf13/cobra"

	"github.com/andrejsstepanovs/supadiag/proposals"
)

func newProposalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "Inspect and accept proposals",
	}

	var listOpts proposals.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleProposalsList(listOpts)
		},
	}
	list.Flags().StringVar(&listOpts.Status, "status", "", "only proposals with this status (pending, accepted, rejected)")
	list.Flags().StringVar(&listOpts.Project, "project", "", "only proposals of this project id")
	list.Flags().IntVar(&listOpts.Limit, "limit", 20, "maximum rows")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "show <proposal-id>",
			Short: "Show a proposal and its acceptance",
			Args:  cobra.ExactArgs(1),
			RunE:  app.handleProposalsShow,
		},
		&cobra.Command{
			Use:   "accept <proposal-id> <user-id>",
			Short: "Record an acceptance for a pending proposal",
			Args:  cobra.ExactArgs(2),
			RunE:  app.handleProposalsAccept,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count proposals per status",
			Args:  cobra.NoArgs,
			RunE:  app.handleProposalsStats,
		},
	)
	return cmd
}

func (a *App) proposals() (*proposals.Service, error) {
	rows, err := a.backend(true)
	if err != nil {
		return nil, err
	}
	return proposals.New(rows, a.log), nil
}

func (a *App) handleProposalsList(opts proposals.ListOptions) error {
	svc, err := a.proposals()
	if err != nil {
		return err
	}
	list, err := svc.List(opts)
	if err != nil {
		return err
	}
	return a.print(list)
}

func (a *App) handleProposalsShow(cmd *cobra.Command, args []string) error {
	svc, err := a.proposals()
	if err != nil {
		return err
	}
	detail, err := svc.Show(args[0])
	if err != nil {
		return err
	}
	return a.print(detail)
}

func (a *App) handleProposalsAccept(cmd *cobra.Command, args []string) error {
	svc, err := a.proposals()
	if err != nil {
		return err
	}
	detail, err := svc.Accept(args[0], args[1])
	if err != nil {
		return err
	}
	return a.print(detail)
}

func (a *App) handleProposalsStats(cmd *cobra.Command, args []string) error {
	svc, err := a.proposals()
	if err != nil {
		return err
	}
	stats, err := svc.Stats()
	if err != nil {
		return err
	}
	return a.print(stats)
}

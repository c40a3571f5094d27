package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andrejsstepanovs/supadiag/probe"
)

func newPingCmd(app *App) *cobra.Command {
	var table string
	var anon bool
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Select one row to check the data service connection and key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handlePing(table, anon)
		},
	}
	cmd.Flags().StringVar(&table, "table", probe.ChunksTable, "table to query")
	cmd.Flags().BoolVar(&anon, "anon", false, "use the anon key instead of the service role key")
	return cmd
}

func newEmbeddingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embeddings",
		Short: "Embeddings service diagnostics",
	}

	var expectDim int
	check := &cobra.Command{
		Use:   "check <text>",
		Short: "Embed text and report the vector size",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleEmbeddingsCheck(cmd, strings.Join(args, " "), expectDim)
		},
	}
	check.Flags().IntVar(&expectDim, "expect-dim", 0, "fail when the vector size differs (0 disables)")

	cmd.AddCommand(check)
	return cmd
}

func newChunksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Document chunk diagnostics",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Count chunks with and without embeddings",
		Args:  cobra.NoArgs,
		RunE:  app.handleChunksStatus,
	}

	var grepLimit int
	grep := &cobra.Command{
		Use:   "grep <term>",
		Short: "Case-insensitive search over chunk content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleChunksGrep(args[0], grepLimit)
		},
	}
	grep.Flags().IntVar(&grepLimit, "limit", 10, "maximum rows")

	var threshold float64
	var count int
	match := &cobra.Command{
		Use:   "match <query>",
		Short: "Embed a query and run the " + probe.MatchFunction + " function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleChunksMatch(cmd, strings.Join(args, " "), threshold, count)
		},
	}
	match.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum similarity (0..1)")
	match.Flags().IntVar(&count, "count", 5, "maximum matches")

	cmd.AddCommand(status, grep, match)
	return cmd
}

func (a *App) handlePing(table string, anon bool) error {
	rows, err := a.backend(!anon)
	if err != nil {
		return err
	}
	res, err := probe.New(rows, nil, nil, a.log).Ping(table)
	if err != nil {
		return err
	}
	return a.print(res)
}

func (a *App) handleEmbeddingsCheck(cmd *cobra.Command, text string, expectDim int) error {
	ai, err := a.ai()
	if err != nil {
		return err
	}
	check, err := probe.New(nil, nil, ai, a.log).CheckEmbedding(cmd.Context(), text, expectDim)
	if check != nil {
		if printErr := a.print(check); printErr != nil {
			return printErr
		}
	}
	return err
}

func (a *App) handleChunksStatus(cmd *cobra.Command, args []string) error {
	rows, err := a.backend(true)
	if err != nil {
		return err
	}
	st, err := probe.New(rows, nil, nil, a.log).ChunkStatus()
	if err != nil {
		return err
	}
	if !st.Healthy() {
		a.log.Warn("chunks without embeddings found", zap.Int64("missing", st.WithoutEmbeddings))
	}
	return a.print(st)
}

func (a *App) handleChunksGrep(term string, limit int) error {
	rows, err := a.backend(true)
	if err != nil {
		return err
	}
	hits, err := probe.New(rows, nil, nil, a.log).Grep(term, limit)
	if err != nil {
		return err
	}
	return a.print(hits)
}

func (a *App) handleChunksMatch(cmd *cobra.Command, query string, threshold float64, count int) error {
	client, err := a.backend(true)
	if err != nil {
		return err
	}
	ai, err := a.ai()
	if err != nil {
		return err
	}
	matches, err := probe.New(client, client, ai, a.log).Match(cmd.Context(), query, threshold, count)
	if err != nil {
		return err
	}
	return a.print(matches)
}

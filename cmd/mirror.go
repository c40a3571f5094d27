package cmd

import (
	"github.com/spf13/cobra"

	"github.com/andrejsstepanovs/supadiag/search"
	"github.com/andrejsstepanovs/supadiag/sync"
)

func newMirrorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Local sqlite-vec mirror of document chunk embeddings",
	}

	var table string
	var pageSize int
	build := &cobra.Command{
		Use:   "build <alias>",
		Short: "Wipe the mirror and pull every chunk that has an embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleMirrorBuild(cmd, app.mirrorConfig(args[0], table, pageSize))
		},
	}
	build.Flags().StringVar(&table, "table", sync.DefaultTable, "remote chunks table")
	build.Flags().IntVar(&pageSize, "page-size", sync.DefaultPageSize, "rows per request")

	syncCmd := &cobra.Command{
		Use:   "sync <alias>",
		Short: "Add new remote chunks and drop local chunks deleted remotely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleMirrorSync(cmd, app.mirrorConfig(args[0], table, pageSize))
		},
	}
	syncCmd.Flags().StringVar(&table, "table", sync.DefaultTable, "remote chunks table")
	syncCmd.Flags().IntVar(&pageSize, "page-size", sync.DefaultPageSize, "rows per request")

	var minSimilarity float64
	var limit int
	find := &cobra.Command{
		Use:   "find <alias> <query>",
		Short: "Embed a query and search the mirror",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.handleMirrorFind(cmd, args, minSimilarity, limit)
		},
	}
	find.Flags().Float64Var(&minSimilarity, "min-similarity", 0.3, "minimum similarity (0..1)")
	find.Flags().IntVar(&limit, "limit", 10, "maximum results")

	cmd.AddCommand(build, syncCmd, find)
	return cmd
}

func (a *App) mirrorConfig(alias, table string, pageSize int) sync.Config {
	return sync.Config{
		Alias:     alias,
		Dir:       a.cfg.Mirror.Dir,
		SourceURL: a.cfg.Backend.URL,
		Table:     table,
		Model:     a.cfg.AI.EmbeddingModel,
		PageSize:  pageSize,
	}
}

func (a *App) handleMirrorBuild(cmd *cobra.Command, cfg sync.Config) error {
	src, err := a.backend(true)
	if err != nil {
		return err
	}
	ai, err := a.ai()
	if err != nil {
		return err
	}
	stats, err := sync.Build(cmd.Context(), src, ai, cfg, a.log)
	if err != nil {
		return err
	}
	return a.print(stats)
}

func (a *App) handleMirrorSync(cmd *cobra.Command, cfg sync.Config) error {
	src, err := a.backend(true)
	if err != nil {
		return err
	}
	stats, err := sync.Sync(cmd.Context(), src, cfg, a.log)
	if err != nil {
		return err
	}
	return a.print(stats)
}

func (a *App) handleMirrorFind(cmd *cobra.Command, args []string, minSimilarity float64, limit int) error {
	config, err := search.ParseConfig(args)
	if err != nil {
		return err
	}
	config.Dir = a.cfg.Mirror.Dir
	config.MinSimilarity = minSimilarity
	config.Limit = limit

	ai, err := a.ai()
	if err != nil {
		return err
	}
	results, err := search.Run(cmd.Context(), ai, config, a.log)
	if err != nil {
		return err
	}
	return a.print(results)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andrejsstepanovs/supadiag/backend"
	"github.com/andrejsstepanovs/supadiag/client"
	"github.com/andrejsstepanovs/supadiag/config"
	"github.com/andrejsstepanovs/supadiag/logger"
	"github.com/andrejsstepanovs/supadiag/render"
)

// App carries what every handler needs once the root command has loaded it.
type App struct {
	envFiles []string
	logLevel string
	output   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg     *config.Config
	log     *zap.Logger
	printer *render.Printer
}

func newApp() *App {
	return &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		log:    zap.NewNop(),
	}
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "supadiag",
		Short:         "Diagnostics for a Supabase backed app: data checks, auth checks, embeddings and chat output extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = app.log.Sync()
		},
	}

	cmd.PersistentFlags().StringSliceVar(&app.envFiles, "env-file", nil, "env files to load (default .env.local,.env)")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&app.output, "output", "o", render.FormatTable, "output format: table, json or yaml")

	cmd.AddCommand(
		newProjectsCmd(app),
		newTasksCmd(app),
		newProposalsCmd(app),
		newUsersCmd(app),
		newAuthCmd(app),
		newPingCmd(app),
		newEmbeddingsCmd(app),
		newChunksCmd(app),
		newChatCmd(app),
		newExtractCmd(app),
		newMirrorCmd(app),
	)
	return cmd
}

func (a *App) setup() error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = logger.NewWithWriter(cfg.Log, a.stderr)

	a.printer, err = render.New(a.stdout, a.output)
	return err
}

// backend opens the data service client with the service role key or the anon key.
func (a *App) backend(serviceRole bool) (*backend.Client, error) {
	if err := a.cfg.RequireBackend(serviceRole); err != nil {
		return nil, err
	}
	return backend.New(a.cfg.Backend.URL, a.cfg.BackendKey(serviceRole), a.log)
}

func (a *App) ai() (*client.AI, error) {
	if err := a.cfg.RequireAI(); err != nil {
		return nil, err
	}
	return client.NewAI(a.cfg.AI), nil
}

func (a *App) print(v any) error {
	return a.printer.Print(v)
}

// exitCode maps an error to the process status: 2 for configuration problems,
// 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, config.ErrMissingVariable) {
		return 2
	}
	return 1
}

// Execute initializes and runs the root command. It is the single entry point
// for the command-line interface.
func Execute() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp()
	rootCmd := newRootCmd(app)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		app.log.Error("command failed", zap.Error(err))
		_ = app.log.Sync()
		fmt.Fprintf(app.stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

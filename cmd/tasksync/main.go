// Command tasksync reconciles external assignment sources into tasks and
// recurring lists.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/logging"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	logLevel   string
	ownerFlag  string

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Sync external assignments into your tasks and lists",
	Long: `tasksync polls connected assignment sources (calendars, course platforms,
assignment files), creates a task for every new assignment, keeps those tasks
up to date when the source changes, and adds new tasks to the default
recurring lists (Daily, Weekly, Monthly) whose window covers the due date.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout)

		// config init must work before a valid config exists.
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if ownerFlag != "" {
			loaded.Owner = ownerFlag
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded

		l, closer, err := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Quiet:      cfg.Log.File != "",
		})
		if err != nil {
			return err
		}
		logger = l
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logCloser()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "act as this owner instead of the configured one")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sources", Title: "Sources:"},
		&cobra.Group{ID: "sync", Title: "Syncing:"},
		&cobra.Group{ID: "lists", Title: "Tasks and lists:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

// openSession opens the session for the loaded config or exits.
func openSession() *app.Session {
	return openSessionWith(app.Options{})
}

func openSessionWith(opts app.Options) *app.Session {
	opts.Config = cfg
	opts.Logger = logger
	s, err := app.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return s
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	logCloser()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}

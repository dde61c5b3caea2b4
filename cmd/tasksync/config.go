package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write a config file holding the defaults. The format follows the file
extension (.yaml, .yml or .toml); --format toml changes the default file
name to config.toml.

Every key can also be set through the environment, e.g.
TASKSYNC_SYNC_INTERVAL=30m or TASKSYNC_STORE_BACKEND=remote.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{"skipConfig": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		force, _ := cmd.Flags().GetBool("force")

		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = config.DefaultPath()
			if format == config.FormatTOML {
				path = filepath.Join(filepath.Dir(path), "config.toml")
			}
		}

		c := config.DefaultConfig()
		if ownerFlag != "" {
			c.Owner = ownerFlag
		}
		if err := c.WriteFile(path, force); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		shown := *cfg
		if shown.Store.SessionToken != "" {
			shown.Store.SessionToken = "********"
		}
		data, err := shown.Encode(format)
		if err != nil {
			fail("%v", err)
		}
		_, _ = os.Stdout.Write(data)
	},
}

func init() {
	configInitCmd.Flags().String("format", config.FormatYAML, "yaml or toml, used when no path is given")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configShowCmd.Flags().String("format", config.FormatYAML, "yaml or toml")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

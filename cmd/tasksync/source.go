package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/logging"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var sourceCmd = &cobra.Command{
	Use:     "source",
	GroupID: "sources",
	Short:   "Connect, list and disconnect assignment sources",
}

var sourceConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a new assignment source and sync it once",
	Long: `Connect an assignment source. Connection details are key=value pairs
specific to the source type:

  calendar  calendar, credentials_file, token_file, lookback
  lms       base_url, course_id, token
  file      dir

Details can also be read from a YAML file with --details-file. Without
--type and --name on a terminal, an interactive form is shown.

Examples:
  tasksync source connect --type file --name Homework -d dir=$HOME/homework
  tasksync source connect --type lms --name "CS 101" --details-file canvas.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		typ, _ := cmd.Flags().GetString("type")
		name, _ := cmd.Flags().GetString("name")
		details, _ := cmd.Flags().GetStringToString("detail")
		detailsFile, _ := cmd.Flags().GetString("details-file")

		if detailsFile != "" {
			fromFile, err := readDetailsFile(detailsFile)
			if err != nil {
				fail("%v", err)
			}
			for k, v := range details {
				fromFile[k] = v
			}
			details = fromFile
		}

		s := openSession()
		defer s.Close()

		if (typ == "" || name == "") && logging.IsTerminal(os.Stdin) {
			var err error
			typ, name, details, err = connectForm(s, typ, name, details)
			if err != nil {
				fail("%v", err)
			}
		}
		if typ == "" || name == "" {
			fail("--type and --name are required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		acct, err := s.ConnectSource(ctx, schema.SourceType(typ), name, details)
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("%s Connected %s (%s)\n", ui.RenderPass("✓"), acct.Name, ui.RenderMuted(acct.ID))
		if msg := s.Errors().Message(app.DomainSync); msg != "" {
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), msg)
		}
	},
}

var sourceDisconnectCmd = &cobra.Command{
	Use:   "disconnect <source-id>",
	Short: "Disconnect a source and forget its mappings",
	Long: `Disconnect a source account. Its identity mappings are deleted; tasks
already created from it are kept.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		if err := s.DisconnectSource(context.Background(), args[0]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s Disconnected %s\n", ui.RenderPass("✓"), args[0])
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected sources",
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		srcs, err := s.Sources(context.Background())
		if err != nil {
			fail("%v", err)
		}
		if len(srcs) == 0 {
			fmt.Println("No sources connected. Run 'tasksync source connect' to add one.")
			return
		}

		rows := make([][]string, 0, len(srcs))
		for _, a := range srcs {
			status := ui.RenderPass(string(a.Status))
			if a.Status == schema.StatusError {
				status = ui.RenderFail(string(a.Status))
			}
			last := "never"
			if a.LastSyncAt != nil {
				last = a.LastSyncAt.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{a.ID, string(a.Type), a.Name, status, last, a.LastError})
		}
		fmt.Print(ui.Table([]string{"ID", "TYPE", "NAME", "STATUS", "LAST SYNC", "ERROR"}, rows))
	},
}

var sourceAssignmentsCmd = &cobra.Command{
	Use:   "assignments <source-id>",
	Short: "List the task ids created from a source",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		ids, err := s.AssignmentsForSource(context.Background(), args[0])
		if err != nil {
			fail("%v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

var sourceLookupCmd = &cobra.Command{
	Use:   "lookup <source-id> <external-id>",
	Short: "Show the task created for one assignment",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession()
		defer s.Close()

		id, ok, err := s.LookupTask(context.Background(), args[0], args[1])
		if err != nil {
			fail("%v", err)
		}
		if !ok {
			fail("%s has not been synced from %s", args[1], args[0])
		}
		fmt.Println(id)
	},
}

func readDetailsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read details file: %w", err)
	}
	details := map[string]string{}
	if err := yaml.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("failed to parse details file %s: %w", path, err)
	}
	return details, nil
}

// connectForm asks for whatever the flags left out.
func connectForm(s *app.Session, typ, name string, details map[string]string) (string, string, map[string]string, error) {
	types := s.Registry().Types()
	options := make([]string, 0, len(types))
	for _, t := range types {
		options = append(options, string(t))
	}

	var detailText string
	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			detailText += k + "=" + details[k] + "\n"
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Source type").
				Options(huh.NewOptions(options...)...).
				Value(&typ),
			huh.NewInput().
				Title("Display name").
				Value(&name).
				Validate(func(v string) error {
					if strings.TrimSpace(v) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Connection details").
				Description("One key=value per line").
				Value(&detailText),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", nil, err
	}

	parsed, err := parseDetails(detailText)
	if err != nil {
		return "", "", nil, err
	}
	return typ, name, parsed, nil
}

func parseDetails(text string) (map[string]string, error) {
	out := map[string]string{}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("line %d: expected key=value", i+1)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func init() {
	sourceConnectCmd.Flags().StringP("type", "t", "", "source type (calendar, lms, file)")
	sourceConnectCmd.Flags().StringP("name", "n", "", "display name")
	sourceConnectCmd.Flags().StringToStringP("detail", "d", nil, "connection detail key=value (repeatable)")
	sourceConnectCmd.Flags().String("details-file", "", "YAML file of connection details")

	sourceCmd.AddCommand(sourceConnectCmd, sourceDisconnectCmd, sourceListCmd, sourceAssignmentsCmd, sourceLookupCmd)
	rootCmd.AddCommand(sourceCmd)
}

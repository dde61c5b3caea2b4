package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tasksync/internal/sources/filesrc"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

var importJSONLCmd = &cobra.Command{
	Use:     "import-jsonl <file|->",
	GroupID: "sources",
	Short:   "Split a JSONL assignment export into a file source directory",
	Long: `Convert a JSONL export (one {"id","name","description","due","modified"}
object per line) into one JSON file per assignment, ready to be connected
with 'tasksync source connect --type file -d dir=<out>'.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"skipConfig": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				fail("%v", err)
			}
			defer f.Close()
			r = f
		}

		result, err := filesrc.SplitJSONL(r, filesrc.SplitOptions{OutputDir: out, DryRun: dryRun})
		if err != nil {
			fail("%v", err)
		}

		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), e)
		}
		if dryRun {
			fmt.Printf("Would write %d assignments to %s\n", result.Converted, out)
			return
		}
		fmt.Printf("%s Wrote %d of %d assignments to %s\n", ui.RenderPass("✓"), result.FilesWritten, result.Converted, out)
	},
}

func init() {
	importJSONLCmd.Flags().StringP("out", "o", "assignments", "output directory")
	importJSONLCmd.Flags().Bool("dry-run", false, "count without writing")

	rootCmd.AddCommand(importJSONLCmd)
}

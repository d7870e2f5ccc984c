package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/sheet"
	"postforge/internal/stage"
	"postforge/internal/stages"
)

var (
	flagSheet     string
	flagDB        string
	flagTable     string
	flagConfigDir string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "postforge-worker",
		Short:         "Runs content pipeline stages against the work sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagSheet, "sheet", envOr("POSTFORGE_SHEET", "sheet.csv"), "path to the CSV work sheet")
	root.PersistentFlags().StringVar(&flagDB, "db", os.Getenv("POSTFORGE_DB"), "path to a SQLite copy of the sheet (overrides --sheet)")
	root.PersistentFlags().StringVar(&flagTable, "table", envOr("POSTFORGE_TABLE", "posts"), "table name when using --db")
	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir", envOr("POSTFORGE_DIR", ".postforge"), "directory holding config.yaml")

	root.AddCommand(newRunCmd(), newStagesCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <stage>",
		Short: "Run one pipeline stage (or \"pipeline\" for a full pass)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			values, err := config.NewStore(flagConfigDir).Load()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			pipeline := stages.FromConfig(values)
			logf := log.New(os.Stdout, "", log.LstdFlags).Printf

			banner := color.New(color.FgCyan, color.Bold)
			if name == stage.PipelineStage {
				banner.Println("==> full pipeline run")
				return pipeline.RunAll(cmd.Context(), store, logf)
			}

			banner.Printf("==> stage %s\n", name)
			sum, err := pipeline.RunStage(cmd.Context(), store, name, logf)
			if err != nil {
				return err
			}
			fmt.Printf("stage %s: %d processed, %d skipped, %d failed\n",
				name, sum.Processed, sum.Skipped, sum.Failed)
			return nil
		},
	}
}

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline steps in execution order",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(stage.PipelineStage, "(all steps below, in order)")
			for _, step := range stages.Order() {
				marker := ""
				if step.Fatal {
					marker = " (fatal on stage error)"
				}
				fmt.Printf("  %s%s\n", step.Name, marker)
			}
		},
	}
}

// openStore picks the SQLite copy when --db is set, the CSV sheet otherwise.
func openStore() (sheet.Store, func(), error) {
	if flagDB != "" {
		s, err := sheet.OpenSQLite(flagDB, flagTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return sheet.OpenCSV(flagSheet), func() {}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

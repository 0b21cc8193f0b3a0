package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tbxark/soprano/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Print the recorded turns of a guided session",
	Long:  `Reads the trace database configured by trace.path. Without --session the most recent session is shown.`,
	RunE:  runTrace,
}

func init() {
	traceCmd.Flags().String("session", "", "session id")
	traceCmd.Flags().String("db", "", "trace database path (overrides trace.path)")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Trace.Path
	}
	if path == "" {
		return fmt.Errorf("no trace database: set trace.path or pass --db")
	}

	store, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	turns, err := store.List(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("No turns recorded.")
		return nil
	}
	fmt.Printf("session %s, form %s\n", turns[0].SessionID, turns[0].FormID)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Field", "Mode", "Heard", "Intent", "Outcome", "Said", "Error")
	for _, t := range turns {
		if err := table.Append(
			t.StartedAt.Local().Format("15:04:05"),
			t.Field,
			string(t.Mode),
			t.Transcript,
			string(t.Intent),
			string(t.Outcome),
			strings.Join(t.Spoken, " "),
			t.Err,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

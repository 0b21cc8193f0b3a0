package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tbxark/soprano/fields"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the forms that support guided mode",
	RunE:  runForms,
}

func init() {
	rootCmd.AddCommand(formsCmd)
}

func runForms(cmd *cobra.Command, args []string) error {
	registry := fields.NewDefaultRegistry()
	for _, id := range registry.IDs() {
		form, _ := registry.Form(id)
		confirm := "auto-submit"
		if form.ConfirmBeforeSubmit {
			confirm = "confirm first"
		}
		fmt.Printf("%s: %s (%s)\n", form.ID, form.Title, confirm)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Field", "Type", "Required", "Prompt")
		for _, f := range form.Fields {
			if err := table.Append(f.Name, string(f.Type), fmt.Sprintf("%v", f.Required), f.Prompt); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}

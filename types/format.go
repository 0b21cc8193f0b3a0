package types

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

func formatCurrentFieldSection(g *GuidedContext) string {
	var buf strings.Builder
	buf.WriteString("# Current field:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Name", "Label", "Type", "Required", "Prompt")
	f := g.CurrentField
	_ = table.Append(f.Name, f.Label, string(f.Type), fmt.Sprintf("%v", f.Required), f.Prompt)
	_ = table.Render()
	return buf.String()
}

func formatHistorySection(entries []ConversationEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Recent answers:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "User said", "Value")
	for _, e := range entries {
		_ = table.Append(e.Field, e.Utterance, fmt.Sprintf("%v", e.Value))
	}
	_ = table.Render()
	return buf.String()
}

// FormatContextSnapshot renders the per-turn snapshot as the user prompt
// sections sent alongside the transcript.
func FormatContextSnapshot(snap ContextSnapshot, utterance string) (string, error) {
	sections := []string{
		fmt.Sprintf("# Current Date:\n%s", time.Now().Format(time.RFC3339)),
		fmt.Sprintf("# Screen:\n%s", snap.Screen),
	}
	if len(snap.Data) > 0 {
		dataJSON, err := sonic.MarshalString(snap.Data)
		if err != nil {
			return "", err
		}
		sections = append(sections, fmt.Sprintf("# Screen data JSON:\n```json\n%s\n```", dataJSON))
	}
	if len(snap.Elements) > 0 {
		sections = append(sections, fmt.Sprintf("# On-screen elements:\n%s", strings.Join(snap.Elements, ", ")))
	}
	if g := snap.Guided; g != nil {
		sections = append(sections,
			fmt.Sprintf("# Guided form:\n%s (question %d of %d, mode %s)", g.FormID, g.Progress.Current, g.Progress.Total, g.Mode),
			formatCurrentFieldSection(g),
		)
		if len(g.Completed) > 0 {
			completed := append([]string(nil), g.Completed...)
			sort.Strings(completed)
			sections = append(sections, fmt.Sprintf("# Completed fields:\n%s", strings.Join(completed, ", ")))
		}
		if s := formatHistorySection(g.History); s != "" {
			sections = append(sections, s)
		}
	}
	sections = append(sections, fmt.Sprintf("# User said:\n%s", utterance))
	return strings.Join(sections, "\n\n"), nil
}

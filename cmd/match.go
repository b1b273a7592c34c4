package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/sheetmatch/mapping"
)

var matchFormat string

func init() {
	matchCmd.Flags().StringVarP(&matchFormat, "format", "f", "text", "Output format (text, json)")
}

var matchCmd = &cobra.Command{
	Use:   "match FILE...",
	Short: "Match sheets and columns against the catalog",
	Long: `Match every sheet of the given CSV files or YAML sheet fixtures to the
catalog and print the review state of each mapping.

Examples:
  sheetmatch match loans.csv --catalog catalog.yaml
  sheetmatch match sheets.yaml --format json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := runSession(cmd.Context(), cfg, log, args, nil)
		if err != nil {
			return err
		}

		sheets := s.Sheets()
		if matchFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sheets)
		}
		for _, sheet := range sheets {
			renderSheet(os.Stdout, sheet)
		}
		return nil
	},
}

func renderSheet(w io.Writer, sheet mapping.SheetMapping) {
	fmt.Fprintf(w, "\n📄 %s → %s  [%s]\n", sheet.OriginalName, tableLabel(sheet), statusLabel(sheet))
	if sheet.Skip {
		if sheet.Issue != "" {
			fmt.Fprintf(w, "   ⏭️  skipped: %s\n", sheet.Issue)
		}
		return
	}
	if sheet.Issue != "" {
		color.New(color.FgYellow).Fprintf(w, "   ⚠️  %s\n", sheet.Issue)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Column", "Inferred", "Target", "Type", "Confidence", "State"})
	for _, col := range sheet.Columns {
		t.AppendRow(table.Row{
			col.OriginalIndex,
			col.OriginalName,
			col.InferredDataType.String(),
			columnLabel(col),
			col.DataType.String(),
			strconv.Itoa(col.Confidence) + "%",
			columnStateLabel(col),
		})
	}
	t.Render()
}

func tableLabel(sheet mapping.SheetMapping) string {
	switch {
	case sheet.Skip:
		return "(skipped)"
	case sheet.IsNewTable && sheet.CreateNewValue != "":
		return "new table " + sheet.CreateNewValue
	case sheet.IsNewTable:
		return "new table? (suggested " + sheet.SuggestedName + ")"
	case sheet.MappedName == "":
		return "(unmapped)"
	}
	return fmt.Sprintf("%s (%d%%)", sheet.MappedName, sheet.TableConfidence)
}

func columnLabel(col mapping.ColumnMapping) string {
	switch {
	case col.Skip:
		return "-"
	case col.MappedName == mapping.CreateNew && col.CreateNewValue != "":
		return "+ " + col.CreateNewValue
	case col.MappedName == mapping.CreateNew:
		return "+ ? (" + col.SuggestedName + ")"
	case col.MappedName == "":
		return "(unmapped)"
	}
	return col.MappedName
}

func statusLabel(sheet mapping.SheetMapping) string {
	switch sheet.Status {
	case mapping.StatusApproved:
		return color.GreenString(string(sheet.Status))
	case mapping.StatusReady:
		return color.CyanString(string(sheet.Status))
	case mapping.StatusMapping:
		return color.YellowString("needs review")
	}
	return string(sheet.Status)
}

func columnStateLabel(col mapping.ColumnMapping) string {
	label := string(col.State)
	if col.Issue != "" {
		label += ": " + col.Issue
	}
	if col.NeedsReview {
		return color.YellowString(label)
	}
	return label
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/sheetmatch/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate the schema changes staged for the given sheets",
	Long: `Match the given sheets with auto-create enabled and validate the staged
schema changes against the catalog.

This command checks:
- Table and column naming (PostgreSQL identifier rules, reserved keywords)
- Duplicate tables and columns within the staged changes
- Conflicts with tables and columns already in the catalog
- Fields whose type could not be inferred and default to text

Examples:
  sheetmatch validate loans.csv --catalog catalog.yaml
  sheetmatch validate loans.csv --format json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.AutoCreate = true

		s, err := runSession(cmd.Context(), cfg, log, args, nil)
		if err != nil {
			return err
		}

		result := validator.ValidateOperations(s.Proposals(), s.Catalog())
		if validateFormat == "json" {
			return outputJSON(result)
		}
		if err := outputText(result); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("staged changes failed validation")
		}
		return nil
	},
}

var validateFormat string

func init() {
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "Output format (text, json)")
}

func outputJSON(result *validator.ValidationResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputText(result *validator.ValidationResult) error {
	// Print summary
	if result.Valid {
		color.Green("✅ Staged changes passed validation!")
	} else {
		color.Red("❌ Staged changes failed validation!")
	}

	printSection("\n🔴 Errors (%d):\n", result.Errors)
	printSection("\n🟡 Warnings (%d):\n", result.Warnings)
	printSection("\n🔵 Info (%d):\n", result.Info)

	// Print summary
	fmt.Printf("\n📊 Summary:\n")
	fmt.Printf("  • Errors: %d\n", len(result.Errors))
	fmt.Printf("  • Warnings: %d\n", len(result.Warnings))
	fmt.Printf("  • Info: %d\n", len(result.Info))

	if result.Valid {
		fmt.Printf("\n🎉 The staged changes are ready to be proposed!\n")
	} else {
		fmt.Printf("\n💡 Fix the errors above, or rename the new tables and fields, before proposing.\n")
	}

	return nil
}

func printSection(title string, items []validator.ValidationError) {
	if len(items) == 0 {
		return
	}
	fmt.Printf(title, len(items))
	for i, item := range items {
		fmt.Printf("  %d. ", i+1)
		if item.Table != "" {
			fmt.Printf("[%s]", item.Table)
		}
		if item.Column != "" {
			fmt.Printf(".%s", item.Column)
		}
		fmt.Printf(": %s\n", item.Message)
	}
}

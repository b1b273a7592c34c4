package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/sheetmatch/generator"
	"github.com/ridoystarlord/sheetmatch/validator"
)

var (
	proposeOutDir string
	dryRunPropose bool
)

func init() {
	proposeCmd.Flags().StringVarP(&proposeOutDir, "out", "o", generator.ProposalDir, "Folder the proposal file is written to")
	proposeCmd.Flags().BoolVar(&dryRunPropose, "dry-run", false, "Preview the SQL that would be proposed without writing files")
}

var proposeCmd = &cobra.Command{
	Use:   "propose FILE...",
	Short: "Stage new tables and fields for unmatched sheets and columns",
	Long: `Match the given sheets with auto-create enabled and write the staged
schema changes as an up/down SQL proposal. The SQL is never executed.

Examples:
  sheetmatch propose loans.csv --catalog catalog.yaml
  sheetmatch propose loans.csv --dry-run
  sheetmatch propose loans.csv payments.csv --out proposals
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.AutoCreate = true

		fmt.Println("🔍 Matching sheets...")
		s, err := runSession(cmd.Context(), cfg, log, args, func(p int) {
			fmt.Printf("\r   %3d%%", p)
		})
		fmt.Println()
		if err != nil {
			return err
		}

		for _, sheet := range s.Sheets() {
			if sheet.NeedsReview && !sheet.Skip {
				fmt.Printf("⚠️  %s still needs review; its changes are not staged\n", sheet.OriginalName)
			}
		}

		ops := s.Proposals()
		if len(ops) == 0 {
			fmt.Println("✅ No schema changes needed")
			return nil
		}

		result := validator.ValidateOperations(ops, s.Catalog())
		if !result.Valid {
			_ = outputText(result)
			return fmt.Errorf("staged changes failed validation")
		}

		sqlStatements, err := generator.GenerateSQL(ops)
		if err != nil {
			return fmt.Errorf("generating SQL: %w", err)
		}
		rollbackStatements, err := generator.GenerateRollbackSQL(ops)
		if err != nil {
			return fmt.Errorf("generating rollback SQL: %w", err)
		}

		if dryRunPropose {
			fmt.Println("🔎 Dry run: the following SQL would be proposed:")
			fmt.Print(generator.RenderProposal("dry run", sqlStatements, rollbackStatements))
			return nil
		}

		filename, err := generator.WriteProposalFile(proposeOutDir, sqlStatements, rollbackStatements)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Proposal written to %s (%d statements)\n", filename, len(sqlStatements))
		return nil
	},
}

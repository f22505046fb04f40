package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/textio/internal/criteria"
	"github.com/ppiankov/textio/internal/store"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and import rule sets",
}

var rulesListCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List rule sets from a YAML file or the embedded defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		src, err := criteria.LoadFile(path)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RULESET\tVERSION\tINPUT TYPE\tCRITERION\tWEIGHT")
		for _, rs := range src.RuleSets() {
			for _, c := range rs.Criteria {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%g\n", rs.Name, rs.Version, rs.InputType, c.Name, c.Weight)
			}
		}
		return tw.Flush()
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import rule sets from a YAML file into the store",
	Long: `Import validates every rule set in the file and writes it to the RULESETS
and CRITERIA tables, replacing the criteria of an existing name and version.
Set rules.from_store to serve them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !storeEnabled(cfg) {
			return fmt.Errorf("no store configured (set store.driver and store.dsn)")
		}

		src, err := criteria.LoadFile(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		w, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()

		repo := store.NewRepository(w)
		for _, rs := range src.RuleSets() {
			id, err := repo.SaveRuleSet(ctx, rs)
			if err != nil {
				return fmt.Errorf("save ruleset %s: %w", rs.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s v%d (%d criteria, id %d)\n", rs.Name, rs.Version, len(rs.Criteria), id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesImportCmd)
}

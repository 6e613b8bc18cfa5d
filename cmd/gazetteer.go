package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
)

var gazetteerCmd = &cobra.Command{
	Use:   "gazetteer",
	Short: "Inspect the reference gazetteer",
	Long:  "Commands for validating reference P-code data and running ranked name lookups against it.",
}

// -- gazetteer check --

var gazetteerCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the reference data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		eng, err := engine.FromConfig(cmd.Context(), cfg)
		if err != nil {
			if gazetteer.IsMalformedReference(err) {
				fmt.Fprintln(os.Stderr, "Reference data is malformed.")
			}
			return err
		}
		formatLevelCounts(os.Stdout, eng.Gazetteer())
		return nil
	},
}

// -- gazetteer lookup --

var gazetteerLookupCmd = &cobra.Command{
	Use:   "lookup <name>",
	Short: "Rank reference entities by similarity to a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("level")
		parent, _ := cmd.Flags().GetString("parent")
		limit, _ := cmd.Flags().GetInt("limit")

		level, err := gazetteer.ParseLevel(levelName)
		if err != nil {
			return eris.Wrap(err, "gazetteer lookup")
		}
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}
		eng, err := engine.FromConfig(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		cands := eng.Gazetteer().Lookup(args[0], level, parent)
		if len(cands) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates found.")
			return nil
		}
		if limit > 0 && len(cands) > limit {
			cands = cands[:limit]
		}
		formatCandidates(os.Stdout, cands)
		return nil
	},
}

func init() {
	gazetteerLookupCmd.Flags().String("level", "municipality", "level to search (region, province, municipality, barangay)")
	gazetteerLookupCmd.Flags().String("parent", "", "restrict to children of this P-code")
	gazetteerLookupCmd.Flags().Int("limit", 10, "max number of candidates to display")

	gazetteerCmd.AddCommand(gazetteerCheckCmd)
	gazetteerCmd.AddCommand(gazetteerLookupCmd)
	rootCmd.AddCommand(gazetteerCmd)
}

// formatLevelCounts writes entity counts per level to w.
func formatLevelCounts(out io.Writer, g *gazetteer.Gazetteer) {
	counts := g.CountByLevel()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, level := range gazetteer.Levels {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", level, counts[level])
	}
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", g.Len())
	_ = w.Flush()
}

// formatCandidates writes ranked lookup results to w.
func formatCandidates(out io.Writer, cands []gazetteer.Candidate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tCODE\tNAME\tPARENT\tHUC")
	_, _ = fmt.Fprintln(w, "-----\t----\t----\t------\t---")

	for _, c := range cands {
		huc := ""
		if c.Entity.IsHUC {
			huc = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			c.Score,
			c.Entity.Code,
			c.Entity.Name,
			c.Entity.ParentCode,
			huc,
		)
	}
	_ = w.Flush()
}

package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/policy"
)

var detectCmd = &cobra.Command{
	Use:   "detect <table>",
	Short: "Print the inferred level of every row",
	Long:  "Runs level detection only. The reference gazetteer is not needed; the HUC table and policy are used when configured.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyIngestFlags(cmd, &cfg.Ingest)
		inputs, err := loadInputs(ctx, args, cfg.Ingest)
		if err != nil {
			return err
		}

		var huc *gazetteer.HUCTable
		if cfg.Reference.HUCPath != "" {
			huc, err = gazetteer.ReadHUCTable(ctx, cfg.Reference.HUCPath)
			if err != nil {
				return err
			}
		}
		p := policy.Default()
		if cfg.Policy.Path != "" {
			if p, err = policy.Load(cfg.Policy.Path); err != nil {
				return err
			}
		}

		dcfg := engine.OptionsFromConfig(cfg, huc).Detect
		dcfg.HUC = p.ApplyHUC(dcfg.HUC)
		leveled := detect.New(dcfg).Detect(inputs[0].Rows)

		formatLevels(os.Stdout, leveled)
		if counts := detect.CountAnomalies(leveled); len(counts) > 0 {
			fmt.Fprintf(os.Stderr, "Anomalies: %s\n", formatCounts(counts))
		}
		return nil
	},
}

func init() {
	addIngestFlags(detectCmd)
	rootCmd.AddCommand(detectCmd)
}

// formatLevels writes a tabular list of detected rows to w.
func formatLevels(out io.Writer, rows []detect.LeveledRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tLEVEL\tHUC\tPARENT\tVALUE\tLABEL\tANOMALY")
	_, _ = fmt.Fprintln(w, "---\t-----\t---\t------\t-----\t-----\t-------")

	for _, r := range rows {
		huc := ""
		if r.HUC {
			huc = "yes"
		}
		parent := ""
		if r.ParentSeq >= 0 {
			parent = strconv.Itoa(r.ParentSeq)
		}
		value := ""
		if r.Value != nil {
			value = strconv.FormatFloat(*r.Value, 'f', -1, 64)
		}
		kinds := make([]string, len(r.Anomalies))
		for i, a := range r.Anomalies {
			kinds[i] = string(a.Kind)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Seq,
			r.Level,
			huc,
			parent,
			value,
			r.Text,
			strings.Join(kinds, ","),
		)
	}
	_ = w.Flush()
}

// formatCounts renders anomaly counts as "kind=n" pairs in kind order.
func formatCounts(counts map[detect.AnomalyKind]int) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[detect.AnomalyKind(k)])
	}
	return strings.Join(parts, " ")
}

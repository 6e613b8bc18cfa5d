package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/config"
	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/ingest"
	"github.com/reliefmap/pcoder/internal/report"
	"github.com/reliefmap/pcoder/internal/store"
	"github.com/reliefmap/pcoder/internal/tabular"
)

var (
	resolveOutput  string
	resolveFormat  string
	resolvePersist bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <table...>",
	Short: "Resolve P-codes for extracted report tables",
	Long: `Reads one or more extracted tables (CSV, TSV or XLSX), infers the
administrative level of every row, matches names against the reference
gazetteer and writes the resolved codes.

Tables are resolved concurrently; rows within a table are processed in order.

Examples:
  # Resolve a DROMIC table and write a workbook
  pcoder resolve affected.csv --output resolved.xlsx

  # Column-based hierarchy with stacked headers, persisted to the store
  pcoder resolve ndrrmc.xlsx --sheet "Affected" --header-rows 2 --persist`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "resolve"
		if resolvePersist {
			mode = "persist"
		}
		applyIngestFlags(cmd, &cfg.Ingest)
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		eng, err := engine.FromConfig(ctx, cfg)
		if err != nil {
			return err
		}

		inputs, err := loadInputs(ctx, args, cfg.Ingest)
		if err != nil {
			return err
		}

		resolved, err := eng.ProcessBatch(ctx, inputs)
		if err != nil {
			return err
		}
		results := derefResults(resolved)

		if err := writeResults(results); err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, report.FormatSummary(results))

		if resolvePersist {
			return persistResults(ctx, args, results)
		}
		return nil
	},
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&resolveOutput, "output", "o", "", "output file (default stdout)")
	f.StringVar(&resolveFormat, "format", "", "output format: csv, xlsx or json (default from --output extension)")
	f.BoolVar(&resolvePersist, "persist", false, "record runs and resolved rows in the configured store")
	addIngestFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}

// addIngestFlags registers the table-shaping flags shared by resolve and
// detect.
func addIngestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("sheet", "", "xlsx sheet to read (default first)")
	f.String("label-column", "", "location column (default first)")
	f.String("value-column", "", "validating numeric column (default first all-non-zero numeric column)")
	f.Int("skip-rows", 0, "rows to skip before the header")
	f.Int("header-rows", 0, "number of stacked header rows to merge")
}

// applyIngestFlags overlays explicitly set flags onto the ingest config.
func applyIngestFlags(cmd *cobra.Command, ic *config.IngestConfig) {
	f := cmd.Flags()
	if f.Changed("sheet") {
		ic.Sheet, _ = f.GetString("sheet")
	}
	if f.Changed("label-column") {
		ic.LabelColumn, _ = f.GetString("label-column")
	}
	if f.Changed("value-column") {
		ic.ValueColumn, _ = f.GetString("value-column")
	}
	if f.Changed("skip-rows") {
		ic.SkipRows, _ = f.GetInt("skip-rows")
	}
	if f.Changed("header-rows") {
		ic.HeaderRows, _ = f.GetInt("header-rows")
	}
}

// ingestOptions maps the ingest config onto table reader and row options.
func ingestOptions(ic config.IngestConfig) (tabular.Options, ingest.Options, error) {
	topts := tabular.Options{SkipRows: ic.SkipRows, Sheet: ic.Sheet}
	opts := ingest.Options{
		LabelColumn: ic.LabelColumn,
		ValueColumn: ic.ValueColumn,
		HeaderRows:  ic.HeaderRows,
	}
	if len(ic.LevelColumns) > 0 {
		opts.LevelColumns = make(map[gazetteer.Level]string, len(ic.LevelColumns))
		for name, column := range ic.LevelColumns {
			level, err := gazetteer.ParseLevel(name)
			if err != nil {
				return topts, opts, eris.Wrapf(err, "ingest.level_columns: %s", name)
			}
			opts.LevelColumns[level] = column
		}
	}
	return topts, opts, nil
}

// loadInputs reads every table path into engine input, in argument order.
func loadInputs(ctx context.Context, paths []string, ic config.IngestConfig) ([]engine.Input, error) {
	topts, opts, err := ingestOptions(ic)
	if err != nil {
		return nil, err
	}
	inputs := make([]engine.Input, 0, len(paths))
	for _, path := range paths {
		in, err := ingest.Load(ctx, path, topts, opts)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("table loaded", zap.String("path", path), zap.Int("rows", len(in.Rows)))
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func derefResults(in []*engine.Result) []engine.Result {
	out := make([]engine.Result, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// outputFormat picks the explicit format, then the output extension, then CSV.
func outputFormat(explicit, output string) (report.Format, error) {
	if explicit != "" {
		return report.ParseFormat(explicit)
	}
	if output != "" {
		return report.FormatFromPath(output), nil
	}
	return report.FormatCSV, nil
}

func writeResults(results []engine.Result) error {
	format, err := outputFormat(resolveFormat, resolveOutput)
	if err != nil {
		return err
	}
	if resolveOutput == "" {
		return report.Write(os.Stdout, format, results)
	}
	if err := report.WriteFile(resolveOutput, format, results); err != nil {
		return err
	}
	zap.L().Info("results written", zap.String("path", resolveOutput), zap.String("format", string(format)))
	return nil
}

// persistResults records one run per table. paths and results are index
// aligned.
func persistResults(ctx context.Context, paths []string, results []engine.Result) error {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	for i, res := range results {
		source := res.Name
		if i < len(paths) {
			source = paths[i]
		}
		run, err := store.Record(ctx, st, source, res)
		if err != nil {
			return eris.Wrapf(err, "persist %s", source)
		}
		fmt.Fprintf(os.Stderr, "Recorded run %s for %s\n", truncateID(run.ID), res.Name)
	}
	return nil
}

// Package engine wires level detection and hierarchical matching into a
// per-table pipeline and runs independent tables concurrently.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/policy"
	"github.com/reliefmap/pcoder/internal/resolve"
)

// Options configures an Engine.
type Options struct {
	Detect detect.Config
	Match  resolve.Config
	// MaxConcurrentTables bounds ProcessBatch. Values below 1 mean 1.
	MaxConcurrentTables int
}

// DefaultOptions returns the detection and matching defaults.
func DefaultOptions() Options {
	return Options{
		Detect:              detect.DefaultConfig(),
		Match:               resolve.DefaultConfig(),
		MaxConcurrentTables: 4,
	}
}

// Input is one extracted table.
type Input struct {
	Name string          `json:"name"`
	Rows []detect.RawRow `json:"rows"`
}

// Result is a resolved table.
type Result struct {
	Name string                `json:"name"`
	Rows []resolve.ResolvedRow `json:"rows"`
	// Paths are the rows' codes after forward/back-fill, index-aligned
	// with Rows.
	Paths   []resolve.Path  `json:"paths"`
	Summary resolve.Summary `json:"summary"`
}

// Engine resolves tables against one gazetteer and policy. It is safe for
// concurrent use.
type Engine struct {
	g        *gazetteer.Gazetteer
	policy   *policy.Policy
	detector *detect.Detector
	matcher  *resolve.Matcher
	opts     Options
}

// New creates an Engine. The policy's HUC corrections are applied to the
// detector's HUC table.
func New(g *gazetteer.Gazetteer, p *policy.Policy, opts Options) *Engine {
	dcfg := opts.Detect
	dcfg.HUC = p.ApplyHUC(dcfg.HUC)
	if opts.MaxConcurrentTables < 1 {
		opts.MaxConcurrentTables = 1
	}
	return &Engine{
		g:        g,
		policy:   p,
		detector: detect.New(dcfg),
		matcher:  resolve.New(g, p, opts.Match),
		opts:     opts,
	}
}

// Gazetteer returns the engine's reference data.
func (e *Engine) Gazetteer() *gazetteer.Gazetteer { return e.g }

// Detect runs level detection only.
func (e *Engine) Detect(rows []detect.RawRow) []detect.LeveledRow {
	return e.detector.Detect(rows)
}

// Process detects levels, resolves codes and summarizes one table. Per-row
// problems are recorded on the rows; the only error is a cancelled ctx.
func (e *Engine) Process(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "engine: process %s", in.Name)
	}
	log := zap.L().With(zap.String("component", "engine"), zap.String("table", in.Name))

	leveled := e.detector.Detect(in.Rows)
	for _, r := range leveled {
		for _, a := range r.Anomalies {
			log.Debug("detection anomaly",
				zap.Int("seq", r.Seq),
				zap.String("label", r.Text),
				zap.String("kind", string(a.Kind)),
				zap.Float64("target", a.Target),
				zap.Float64("sum", a.Sum),
			)
		}
	}

	rows := e.matcher.Resolve(leveled)
	for _, r := range rows {
		if r.Outcome == resolve.OutcomeNoMatch {
			log.Debug("no match",
				zap.Int("seq", r.Seq),
				zap.String("label", r.Text),
				zap.String("level", r.Level.String()),
				zap.Int("best_score", r.Score),
			)
		}
	}

	res := &Result{
		Name:    in.Name,
		Rows:    rows,
		Paths:   resolve.Fill(rows),
		Summary: resolve.Summarize(rows),
	}

	log.Info("table resolved",
		zap.Int("rows", len(rows)),
		zap.Int("matched", res.Summary.Overall.Matched+res.Summary.Overall.Overridden),
		zap.Int("unmatched", res.Summary.Overall.Unmatched),
		zap.Int("ambiguous", res.Summary.Overall.Ambiguous),
		zap.Float64("match_rate", res.Summary.Overall.MatchRate),
	)
	return res, nil
}

// ProcessBatch resolves independent tables concurrently, at most
// MaxConcurrentTables at a time. Results are returned in input order. Rows
// within a table are always processed sequentially.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	results := make([]*Result, len(inputs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrentTables)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := e.Process(gctx, in)
			if err != nil {
				return err
			}
			results[i] = res
			done.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: batch")
	}

	zap.L().Info("engine: batch complete",
		zap.Int("tables", len(inputs)),
		zap.Int64("processed", done.Load()),
	)
	return results, nil
}

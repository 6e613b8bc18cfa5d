package engine

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/config"
	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/policy"
	"github.com/reliefmap/pcoder/internal/resolve"
)

// FromConfig loads the reference data, HUC table and policy named by cfg
// and builds an Engine. A malformed reference is returned as an error that
// satisfies gazetteer.IsMalformedReference.
func FromConfig(ctx context.Context, cfg *config.Config) (*Engine, error) {
	log := zap.L().With(zap.String("component", "engine.setup"))

	sim, err := gazetteer.SimilarityByName(cfg.Match.Similarity)
	if err != nil {
		return nil, eris.Wrap(err, "engine: similarity")
	}

	var huc *gazetteer.HUCTable
	if cfg.Reference.HUCPath != "" {
		huc, err = gazetteer.ReadHUCTable(ctx, cfg.Reference.HUCPath)
		if err != nil {
			return nil, eris.Wrap(err, "engine: huc table")
		}
	} else {
		log.Info("no HUC table configured; HUC rows are detected as ordinary municipalities")
	}

	g, err := gazetteer.Load(ctx, cfg.Reference.Path, gazetteer.LoadOptions{
		Format: cfg.Reference.Format,
		Sheet:  cfg.Reference.Sheet,
		HUC:    huc,
	}, gazetteer.WithSimilarity(sim))
	if err != nil {
		return nil, eris.Wrap(err, "engine: load reference")
	}

	p := policy.Default()
	if cfg.Policy.Path != "" {
		p, err = policy.Load(cfg.Policy.Path)
		if err != nil {
			return nil, eris.Wrap(err, "engine: load policy")
		}
	}
	log.Debug("policy ready", zap.Int("entries", p.Len()))

	return New(g, p, OptionsFromConfig(cfg, huc)), nil
}

// OptionsFromConfig maps configuration onto engine options.
func OptionsFromConfig(cfg *config.Config, huc *gazetteer.HUCTable) Options {
	opts := Options{
		Detect: detect.Config{
			TotalMarkers: cfg.Detect.TotalMarkers,
			AbsTolerance: cfg.Detect.AbsTolerance,
			RelTolerance: cfg.Detect.RelTolerance,
			HUC:          huc,
		},
		Match: resolve.Config{
			Threshold:      cfg.Match.Threshold,
			AmbiguityDelta: cfg.Match.AmbiguityDelta,
		},
		MaxConcurrentTables: cfg.Batch.MaxConcurrentTables,
	}
	if len(opts.Detect.TotalMarkers) == 0 {
		opts.Detect.TotalMarkers = detect.DefaultConfig().TotalMarkers
	}
	return opts
}

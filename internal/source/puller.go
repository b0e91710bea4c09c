package source

import (
	"context"
	"time"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/xlog"
)

// Puller periodically re-runs a SiteSource/DatasetSource pair against the
// catalog. The original's lib/core Dynamo.__init__ only loads sources
// once at startup; SPEC_FULL.md §4.7 adds this optional refresh since a
// stale catalog between restarts is otherwise silent. Disabled by a zero
// Interval.
type Puller struct {
	Catalog  *catalog.Catalog
	Sites    SiteSource
	Datasets DatasetSource
	// Names lists the datasets to refresh each pass; it is passed to
	// Datasets.GetDatasets as is (DBSClient fetches nothing for an empty
	// list).
	Names    []string
	Interval time.Duration
}

// Run blocks, pulling every Interval until ctx is cancelled. A zero
// Interval returns immediately without pulling.
func (p *Puller) Run(ctx context.Context) {
	if p.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pullOnce(ctx)
		}
	}
}

func (p *Puller) pullOnce(ctx context.Context) {
	if p.Sites != nil {
		sites, err := p.Sites.GetSiteList(ctx)
		if err != nil {
			xlog.Log.Warn().Err(err).Msg("source: site pull failed")
		}
		for _, s := range sites {
			if err := p.Catalog.Update(s); err != nil {
				xlog.Log.Warn().Err(err).Str("site", s.Name).Msg("source: site apply failed")
			}
		}
	}
	if p.Datasets != nil {
		records, err := p.Datasets.GetDatasets(ctx, p.Names)
		if err != nil {
			xlog.Log.Warn().Err(err).Msg("source: dataset pull failed")
		}
		for _, r := range records {
			if err := r.Apply(p.Catalog); err != nil {
				xlog.Log.Warn().Err(err).Str("dataset", r.Dataset.Name).Msg("source: dataset apply failed")
			}
		}
	}
}

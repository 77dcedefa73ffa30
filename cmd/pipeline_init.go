package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/schoolscrape/internal/batch"
	"github.com/sells-group/schoolscrape/internal/browser"
	"github.com/sells-group/schoolscrape/internal/catalog"
	"github.com/sells-group/schoolscrape/internal/detail"
	"github.com/sells-group/schoolscrape/internal/listing"
	"github.com/sells-group/schoolscrape/internal/model"
	"github.com/sells-group/schoolscrape/internal/output"
	"github.com/sells-group/schoolscrape/internal/portal"
	"github.com/sells-group/schoolscrape/internal/publish"
	"github.com/sells-group/schoolscrape/internal/resilience"
	"github.com/sells-group/schoolscrape/internal/store"
)

// pipelineOptions selects which parts of the pipeline a command needs.
type pipelineOptions struct {
	Phase2 bool
	Resume bool
	Ledger bool
}

// pipelineEnv holds the navigation session and every component built on
// it, as needed by the run/phase1/phase2 commands.
type pipelineEnv struct {
	Store     store.Store // nil unless requested
	Writer    *output.Writer
	Portal    *portal.Portal
	Lister    *listing.Extractor
	Scheduler *batch.Scheduler // nil unless Phase 2 was requested
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline builds one navigation session and the components that
// share it. Callers should defer env.Close().
func initPipeline(ctx context.Context, opts pipelineOptions) (*pipelineEnv, error) {
	w, err := output.NewWriter(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}

	nav := browser.NewHTTPNavigator(browser.HTTPOptions{
		UserAgent:     cfg.Portal.UserAgent,
		Timeout:       cfg.Portal.Timeout,
		RatePerSecond: cfg.Portal.RatePerSecond,
		Burst:         cfg.Portal.Burst,
		Breaker:       resilience.FromBreakerConfig(cfg.Portal.Breaker.FailureThreshold, cfg.Portal.Breaker.Cooldown),
	})
	site := portal.New(nav, portal.Config{
		EntryURL:      cfg.Portal.EntryURL,
		DetailBaseURL: cfg.Portal.DetailBaseURL,
		Selectors:     cfg.Portal.Selectors,
		ReadyTimeout:  cfg.Portal.ReadyTimeout,
		PollInterval:  cfg.Portal.PollInterval,
	})

	env := &pipelineEnv{
		Writer: w,
		Portal: site,
		Lister: listing.New(site, listing.Config{
			PortalPolicy: cfg.Retry.Portal.Policy("portal", "listing"),
			NextPolicy:   cfg.Retry.NextCheck.Policy("portal", "next page"),
			PageSize:     cfg.Listing.PageSize,
			MaxPages:     cfg.Listing.MaxPages,
		}),
	}

	if opts.Phase2 {
		enricher := detail.New(nav, detail.Config{
			Policy:        cfg.Retry.Detail.Policy("portal", "detail page"),
			ReadySelector: cfg.Portal.Selectors.DetailReady,
			ReadyTimeout:  cfg.Portal.ReadyTimeout,
			PollInterval:  cfg.Portal.PollInterval,
		})
		env.Scheduler = batch.New(enricher, w, initPublisher(), batch.Config{
			Size:   cfg.Batch.Size,
			Resume: opts.Resume || cfg.Batch.Resume,
		})
	}

	if opts.Ledger {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	return env, nil
}

// initPublisher returns the Notion publisher, or nil when publishing is
// not configured.
func initPublisher() batch.Publisher {
	if !cfg.Notion.Enabled() {
		return nil
	}
	table := publish.NewNotionTable(cfg.Notion.Token, cfg.Notion.DatabaseID, cfg.Notion.RatePerSecond)
	zap.L().Info("publishing batches to notion", zap.String("database_id", cfg.Notion.DatabaseID))
	return publish.NewNotionPublisher(table)
}

// selectRegions resolves region names against the configured catalog.
// No names selects the whole catalog.
func selectRegions(names []string) ([]model.Region, error) {
	cat, err := catalog.LoadOrDefault(cfg.Catalog.File)
	if err != nil {
		return nil, eris.Wrap(err, "load region catalog")
	}
	return cat.Select(names)
}

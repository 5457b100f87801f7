package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/amishk599/jobharvest/internal/adapter"
	"github.com/amishk599/jobharvest/internal/ai"
	"github.com/amishk599/jobharvest/internal/config"
	"github.com/amishk599/jobharvest/internal/docgen"
	"github.com/amishk599/jobharvest/internal/fetcher"
	"github.com/amishk599/jobharvest/internal/filter"
	"github.com/amishk599/jobharvest/internal/lock"
	"github.com/amishk599/jobharvest/internal/metrics"
	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/pipeline"
	"github.com/amishk599/jobharvest/internal/poller"
	"github.com/amishk599/jobharvest/internal/ratelimit"
	"github.com/amishk599/jobharvest/internal/reconcile"
	"github.com/amishk599/jobharvest/internal/retry"
	"github.com/amishk599/jobharvest/internal/scheduler"
	"github.com/amishk599/jobharvest/internal/store"
)

// appOptions are the per-command knobs on top of the config file.
type appOptions struct {
	Sites   []string // empty means every enabled site
	DryRun  bool
	Metrics *metrics.Metrics
}

// app holds the long-lived collaborators of one command invocation.
type app struct {
	cfg          *config.Config
	store        model.Store
	locker       lock.Locker
	orchestrator *scheduler.Orchestrator
	httpClient   *http.Client
	metrics      *metrics.Metrics
	dryRun       bool
	logger       *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions, logger *slog.Logger) (*app, error) {
	sites, err := selectSites(cfg, opts.Sites)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	locker, err := lock.Open(ctx, lock.Config{Driver: cfg.Lock.Driver, RedisURL: cfg.Lock.RedisURL, TTL: cfg.Lock.TTL})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open lock: %w", err)
	}

	a := &app{
		cfg:        cfg,
		store:      st,
		locker:     locker,
		httpClient: &http.Client{Timeout: cfg.Fetch.Timeout},
		metrics:    opts.Metrics,
		dryRun:     opts.DryRun,
		logger:     logger,
	}
	if a.metrics == nil {
		a.metrics = metrics.Discard()
	}

	runners, err := a.buildPollers(sites)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orchestrator = scheduler.NewOrchestrator(runners, scheduler.Options{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.locker.Close(); err != nil {
		a.logger.Warn("closing lock", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// selectSites returns the enabled sites, or the named ones when names is set.
// Naming a disabled site runs it anyway.
func selectSites(cfg *config.Config, names []string) ([]config.SiteConfig, error) {
	if len(names) == 0 {
		return cfg.EnabledSites(), nil
	}
	var out []config.SiteConfig
	for _, name := range names {
		s, ok := cfg.Site(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown site %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// buildPollers wires one SitePoller per site. Sites share the store, the
// lock, the reconciler and the per-host limiter; each gets its own fetcher
// and random source.
func (a *app) buildPollers(sites []config.SiteConfig) ([]scheduler.SiteRunner, error) {
	registry := adapter.NewRegistry()
	hosts := ratelimit.NewHostLimiter(a.cfg.Fetch.HostMinGap)
	reconciler := reconcile.New(a.store, reconcile.Options{
		DryRun:  a.dryRun,
		Logger:  a.logger,
		Metrics: a.metrics,
	})

	var runners []scheduler.SiteRunner
	for _, site := range sites {
		ad, err := registry.Build(site.AdapterSite())
		if err != nil {
			return nil, err
		}

		rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		f := fetcher.New(fetcher.Options{
			Site:       site.Name,
			Client:     a.httpClient,
			Politeness: ratelimit.NewJitter(site.MinDelay, site.MaxDelay, rng),
			Hosts:      hosts,
			Policy: retry.Policy{
				Base:       site.BackoffBase,
				Cap:        site.BackoffCap,
				MaxRetries: site.MaxRetries,
			},
			Identities:    fetcher.NewIdentityPool(a.cfg.Fetch.UserAgents, rng),
			StaticHeaders: staticHeaders(site.Headers),
			Metrics:       a.metrics,
			Logger:        a.logger,
		})

		runners = append(runners, poller.New(poller.Options{
			Site:          site.Name,
			Adapter:       ad,
			Fetcher:       f,
			Reconciler:    reconciler,
			Runs:          a.store,
			Locker:        a.locker,
			MaxPages:      site.MaxPages,
			MaxEmptyPages: site.MaxEmptyPages,
			Metrics:       a.metrics,
			Logger:        a.logger,
		}))
		a.logger.Info("registered site", "site", site.Name, "kind", site.Kind, "max_pages", site.MaxPages)
	}
	return runners, nil
}

func staticHeaders(h map[string]string) http.Header {
	if len(h) == 0 {
		return nil
	}
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

func (a *app) filter() model.PostingFilter {
	return filter.NewTitleAndLocationFilter(filter.Criteria{
		TitleKeywords:        a.cfg.Filters.TitleKeywords,
		TitleExcludeKeywords: a.cfg.Filters.TitleExcludeKeywords,
		Locations:            a.cfg.Filters.Locations,
		ExcludeLocations:     a.cfg.Filters.ExcludeLocations,
	})
}

// pipeline assembles the phase runner. notify may be nil to leave reporting
// to the caller.
func (a *app) pipeline(notify model.Notifier) (*pipeline.Pipeline, error) {
	opts := pipeline.Options{
		Ingester:        a.orchestrator,
		Filter:          a.filter(),
		Notifier:        notify,
		Store:           a.store,
		RetentionPeriod: a.cfg.Cleanup.Retention,
		DeleteVanished:  a.cfg.Cleanup.DeleteVanished,
		DryRun:          a.dryRun,
		Logger:          a.logger,
	}
	if a.cfg.Documents.Enabled {
		gen, err := docgen.NewFromFile(a.cfg.Documents.OutDir, a.cfg.Documents.Template)
		if err != nil {
			return nil, err
		}
		if sum := a.cfg.Documents.Summarize; sum.Enabled {
			provider := ai.NewOpenAIProvider(ai.OpenAIOptions{
				BaseURL:    sum.BaseURL,
				APIKey:     sum.APIKey,
				Model:      sum.Model,
				HTTPClient: &http.Client{Timeout: sum.Timeout},
			})
			gen.WithSummarizer(ai.NewSummarizer(provider, nil, a.logger), a.logger)
			a.logger.Info("document summaries enabled", "model", sum.Model)
		}
		opts.Documents = gen
	}
	return pipeline.New(opts), nil
}

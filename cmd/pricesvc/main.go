package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guarzo/pkmprices/internal/api"
	"github.com/guarzo/pkmprices/internal/cache"
	"github.com/guarzo/pkmprices/internal/catalog"
	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/config"
	"github.com/guarzo/pkmprices/internal/pricing"
	"github.com/guarzo/pkmprices/internal/progress"
	"github.com/guarzo/pkmprices/internal/providers"
	"github.com/guarzo/pkmprices/internal/report"
	"github.com/guarzo/pkmprices/internal/scheduler"
	"github.com/guarzo/pkmprices/internal/upstream"
)

const usage = `usage: pricesvc [-config path] <command> [flags]

commands:
  serve     run the HTTP API and background jobs
  refresh   resolve every catalog card once and store the prices
  price     resolve one card and print CSV to stdout
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to YAML config")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Main: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Main: config validation: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "serve":
		err = serve(ctx, cfg)
	case "refresh":
		err = refresh(ctx, cfg)
	case "price":
		err = price(ctx, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Main: %s: %v", cmd, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newService wires providers, cache and the orchestrator from cfg.
func newService(cfg *config.Config) (*pricing.Service, *cache.PriceCache) {
	clk := clock.Real{}
	for name, ok := range cfg.ProviderKeysSummary() {
		if !ok {
			log.Printf("Main: %s not configured", name)
		}
	}

	client := upstream.NewClient(cfg.Providers.RequestTimeout)
	priceCache := cache.New(cfg.Cache.TTL, clk)
	if cfg.Cache.SnapshotPath != "" {
		loaded, dropped, err := priceCache.Load(cfg.Cache.SnapshotPath)
		if err != nil {
			log.Printf("Main: cache snapshot ignored: %v", err)
		} else {
			log.Printf("Main: cache snapshot loaded %d entries (%d dropped)", loaded, dropped)
		}
	}

	svc := pricing.New(pricing.Options{
		Providers:       providers.New(cfg.Providers, client, clk),
		Cache:           priceCache,
		Clock:           clk,
		Retry:           cfg.Pricing.Retry,
		ProviderTimeout: cfg.Pricing.ProviderTimeout,
		Batch:           cfg.BatchConfig(),
	})
	log.Printf("Main: active providers %v", svc.Providers())
	return svc, priceCache
}

func saveSnapshot(cfg *config.Config, c *cache.PriceCache) {
	if cfg.Cache.SnapshotPath == "" {
		return
	}
	if err := c.Save(cfg.Cache.SnapshotPath); err != nil {
		log.Printf("Main: save cache snapshot: %v", err)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	svc, priceCache := newService(cfg)
	defer saveSnapshot(cfg, priceCache)

	store, err := catalog.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, clock.Real{})
	if err != nil {
		log.Printf("Main: catalog unavailable, card routes and refresh disabled: %v", err)
	} else {
		defer store.Close()
	}

	sched := scheduler.New(ctx, cfg.Scheduler, svc, store)
	if err := sched.RegisterAll(); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(api.NewHandler(svc, store)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Main: listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Println("Main: shutdown signal received, stopping...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Printf("Main: scheduler stop: %v", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func refresh(ctx context.Context, cfg *config.Config) error {
	svc, priceCache := newService(cfg)
	defer saveSnapshot(cfg, priceCache)

	store, err := catalog.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, clock.Real{})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	bar := progress.NewIndicator(os.Stderr, "Refreshing prices", 0, true)
	bar.Start()
	rep, err := scheduler.New(ctx, cfg.Scheduler, svc, store).WithProgress(bar).RunRefreshNow(ctx)
	if err != nil {
		bar.FinishWithError(err)
		return err
	}
	bar.Finish()
	log.Printf("Main: refresh %s done: %d cards, %d saved, %d failed", rep.RunID, rep.Cards, rep.Saved, rep.Failed)
	return nil
}

func price(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	name := fs.String("name", "", "card name")
	set := fs.String("set", "", "set name")
	id := fs.String("id", "", "upstream card id")
	lang := fs.String("lang", "", "language (EN, IT, FR, DE, ES, PT); empty for all")
	mode := fs.String("mode", string(pricing.ModeAll), "best or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, priceCache := newService(cfg)
	defer saveSnapshot(cfg, priceCache)

	quotes, err := svc.Resolve(ctx, pricing.ResolveRequest{
		Name:       *name,
		SetName:    *set,
		UpstreamID: *id,
		Language:   *lang,
		Mode:       pricing.Mode(*mode),
	})
	if err != nil {
		return err
	}
	return report.WriteQuotes(os.Stdout, quotes)
}

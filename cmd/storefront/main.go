// Command storefront is an interactive storefront client: sign in, check the
// subscription, buy through Stripe Checkout and download the bundle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/storefront/internal/cli"
	"github.com/mihaimyh/storefront/internal/config"
	"github.com/mihaimyh/storefront/pkg/checkout"
	stripecheckout "github.com/mihaimyh/storefront/pkg/checkout/stripe"
	"github.com/mihaimyh/storefront/pkg/delivery"
	"github.com/mihaimyh/storefront/pkg/identity/firebase"
	"github.com/mihaimyh/storefront/pkg/storefront"
	zerologadapter "github.com/mihaimyh/storefront/pkg/storefront/logger/zerolog"
	prommetrics "github.com/mihaimyh/storefront/pkg/storefront/metrics/prometheus"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "storefront:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Print("Usage of storefront:\n" + config.Usage())
		return nil
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl := newZerolog(cfg.LogLevel)
	logger := zerologadapter.NewLogger(zl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := prommetrics.NewMetrics(reg, "storefront")

	source, closeSource, err := openRecordSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	store := storefront.NewStore(cfg.Products)

	// the credential prompt reads from the REPL's input, so it is bound once the app exists
	var app *cli.App
	provider, err := firebase.NewProvider(firebase.Config{
		APIKey: cfg.FirebaseAPIKey,
		Credential: func(ctx context.Context) (firebase.Credential, error) {
			return app.GoogleCredential(ctx)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	session, err := storefront.NewSession(provider, logger)
	if err != nil {
		return err
	}
	syncer, err := storefront.NewSyncer(store, storefront.SyncConfig{
		Source:       source,
		FetchTimeout: cfg.SyncTimeout,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}
	detach := syncer.Attach(ctx, session)
	defer syncer.Wait()
	defer detach()

	purchase, err := checkout.New(store, checkout.Config{
		WebhookURL: cfg.CheckoutWebhookURL,
		PriceID:    cfg.PriceID,
		Redirector: stripecheckout.NewRedirector(stripecheckout.Config{
			APIKey:  cfg.StripeKey,
			Logger:  logger,
			Metrics: metrics,
		}),
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	download, err := delivery.New(store, delivery.Config{
		WebhookURL: cfg.DownloadWebhookURL,
		Saver:      delivery.FileSaver{Dir: cfg.DownloadDir},
		Tokens:     session,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	app, err = cli.NewApp(cli.Deps{
		Store:    store,
		Auth:     session,
		Purchase: purchase,
		Delivery: download,
		In:       os.Stdin,
		Out:      os.Stdout,
		Logger:   logger,
		Refresh:  refresher(session, syncer),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// stdin reads do not observe ctx; stop waiting for the REPL on shutdown
		done := make(chan error, 1)
		go func() { done <- app.Run(gctx) }()
		select {
		case err := <-done:
			stop()
			return err
		case <-gctx.Done():
			return nil
		}
	})
	if cfg.Listen != "" {
		g.Go(func() error {
			return serveAPI(gctx, cfg.Listen, store, reg, logger)
		})
	}
	return g.Wait()
}

func newZerolog(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// refresher re-reconciles the signed-in identity, bypassing any record cache.
func refresher(session *storefront.Session, syncer *storefront.Syncer) func(context.Context) error {
	return func(ctx context.Context) error {
		id := session.Current()
		if id == nil {
			return storefront.ErrRequiresAuthentication
		}
		return syncer.Refresh(ctx, *id)
	}
}

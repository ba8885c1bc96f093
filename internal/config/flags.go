package config

import (
	"flag"
	"io"
	"strings"
)

// newFlagSet binds every flag to cfg. The JSON file flags are accepted and ignored here.
func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.Func("products", "comma-separated catalog product ids", func(s string) error {
		cfg.Products = splitList(s)
		return nil
	})
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "subscription record store: memory, firestore, postgres, redis")
	fs.StringVar(&cfg.Cache, "cache", cfg.Cache, "hot record cache in front of the backend: memory, redis")
	fs.StringVar(&cfg.FirebaseAPIKey, "firebase-api-key", cfg.FirebaseAPIKey, "Firebase web API key")
	fs.StringVar(&cfg.FirestoreProject, "firestore-project", cfg.FirestoreProject, "Google Cloud project id")
	fs.StringVar(&cfg.LicensesCollection, "licenses-collection", cfg.LicensesCollection, "Firestore collection of subscription records")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Postgres connection string")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.StripeKey, "stripe-key", cfg.StripeKey, "Stripe key used to look up checkout sessions")
	fs.StringVar(&cfg.CheckoutWebhookURL, "checkout-url", cfg.CheckoutWebhookURL, "checkout session webhook")
	fs.StringVar(&cfg.PriceID, "price", cfg.PriceID, "subscription price id")
	fs.StringVar(&cfg.DownloadWebhookURL, "download-url", cfg.DownloadWebhookURL, "bundle download webhook")
	fs.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "directory for downloaded files")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "renderer API address, e.g. 127.0.0.1:8080")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error")
	fs.DurationVar(&cfg.SyncTimeout, "sync-timeout", cfg.SyncTimeout, "subscription record fetch timeout")
	fs.IntVar(&cfg.BreakerThreshold, "breaker-threshold", cfg.BreakerThreshold, "record store failures before failing fast (0 disables)")
	fs.DurationVar(&cfg.BreakerReset, "breaker-reset", cfg.BreakerReset, "wait before probing a failing record store again")

	var ignored string
	fs.StringVar(&ignored, "c", "", "JSON config file")
	fs.StringVar(&ignored, "config", "", "JSON config file")
	return fs
}

func parseFlags(cfg *Config, args []string) error {
	return newFlagSet(cfg).Parse(args)
}

// Usage returns the flag summary.
func Usage() string {
	var b strings.Builder
	cfg := &Config{}
	cfg.LoadDefaults()
	fs := newFlagSet(cfg)
	fs.SetOutput(&b)
	fs.PrintDefaults()
	return b.String()
}

// configFileArg returns the value of -c/-config in args, if any.
func configFileArg(args []string) string {
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(strings.TrimLeft(args[i], "-"), "=")
		if !strings.HasPrefix(args[i], "-") || (name != "c" && name != "config") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

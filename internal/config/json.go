package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// duration accepts "10s" or integer nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// jsonConfig is used only for unmarshalling. Absent fields keep their current value.
type jsonConfig struct {
	Products           []string  `json:"products"`
	Backend            *string   `json:"backend"`
	Cache              *string   `json:"cache"`
	FirebaseAPIKey     *string   `json:"firebase_api_key"`
	FirestoreProject   *string   `json:"firestore_project"`
	LicensesCollection *string   `json:"licenses_collection"`
	PostgresDSN        *string   `json:"postgres_dsn"`
	RedisAddr          *string   `json:"redis_addr"`
	StripeKey          *string   `json:"stripe_key"`
	CheckoutWebhookURL *string   `json:"checkout_url"`
	PriceID            *string   `json:"price"`
	DownloadWebhookURL *string   `json:"download_url"`
	DownloadDir        *string   `json:"download_dir"`
	Listen             *string   `json:"listen"`
	LogLevel           *string   `json:"log_level"`
	SyncTimeout        *duration `json:"sync_timeout"`
	BreakerThreshold   *int      `json:"breaker_threshold"`
	BreakerReset       *duration `json:"breaker_reset"`
}

func parseJSON(cfg *Config, args []string) error {
	path := configFileArg(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if jc.Products != nil {
		cfg.Products = jc.Products
	}
	setString(&cfg.Backend, jc.Backend)
	setString(&cfg.Cache, jc.Cache)
	setString(&cfg.FirebaseAPIKey, jc.FirebaseAPIKey)
	setString(&cfg.FirestoreProject, jc.FirestoreProject)
	setString(&cfg.LicensesCollection, jc.LicensesCollection)
	setString(&cfg.PostgresDSN, jc.PostgresDSN)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.StripeKey, jc.StripeKey)
	setString(&cfg.CheckoutWebhookURL, jc.CheckoutWebhookURL)
	setString(&cfg.PriceID, jc.PriceID)
	setString(&cfg.DownloadWebhookURL, jc.DownloadWebhookURL)
	setString(&cfg.DownloadDir, jc.DownloadDir)
	setString(&cfg.Listen, jc.Listen)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.SyncTimeout != nil {
		cfg.SyncTimeout = time.Duration(*jc.SyncTimeout)
	}
	if jc.BreakerThreshold != nil {
		cfg.BreakerThreshold = *jc.BreakerThreshold
	}
	if jc.BreakerReset != nil {
		cfg.BreakerReset = time.Duration(*jc.BreakerReset)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

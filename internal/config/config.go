// Package config loads the immutable process configuration from the
// environment. Load runs once at startup; the resulting value is passed
// explicitly to every component that needs it and never mutated.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the worker reads. Durations configured in
// seconds are converted at load time.
type Config struct {
	// SASURL is the descriptor of the main location. The control folder is
	// polled here and status logs are uploaded here; source and destination
	// default to it unless a trigger overrides them.
	SASURL string

	TriggerName  string        // exact trigger artifact name
	TriggerExt   string        // fallback extension matched when the exact name is absent
	PollInterval time.Duration // wait between control-folder checks

	MaxWorkers        int           // worker pool cap per batch
	MinForConcurrency int           // batches smaller than this run sequentially
	BatchSize         int           // documents per batch
	BatchDelay        time.Duration // pause between batches, never after the last

	PoolSize    int           // max connections per storage host
	MaxRetries  int           // transport retries per request
	ConnTimeout time.Duration // per-attempt network deadline

	LedgerPath string // failure ledger CSV location

	Soffice        string        // LibreOffice binary name or path
	ConvertTimeout time.Duration // per-document conversion deadline

	NATSURL string // event broker, empty disables publishing
}

// Load builds the configuration from the environment. SAS_URL is the only
// required setting; everything else falls back to the defaults below.
func Load() (Config, error) {
	cfg := Config{
		SASURL:      os.Getenv("SAS_URL"),
		TriggerName: getenv("TRIGGER_FILE_PATTERN", "start_conversion_1234.txt"),
		TriggerExt:  getenv("TRIGGER_FILE_EXT", ".txt"),
		LedgerPath:  getenv("FAILED_LEDGER_PATH", "failed_conversions.csv"),
		Soffice:     getenv("SOFFICE_PATH", "soffice"),
		NATSURL:     os.Getenv("NATS_URL"),
	}
	if cfg.SASURL == "" {
		return Config{}, fmt.Errorf("SAS_URL is required")
	}

	poll, err := parsePositiveInt(getenv("POLLING_INTERVAL_SECONDS", "120"), "POLLING_INTERVAL_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.PollInterval = time.Duration(poll) * time.Second

	cfg.MaxWorkers, err = parsePositiveInt(getenv("MAX_WORKER_THREADS", "10"), "MAX_WORKER_THREADS")
	if err != nil {
		return Config{}, err
	}

	cfg.MinForConcurrency, err = parsePositiveInt(getenv("MIN_FILES_FOR_MULTI_THREADING", "4"), "MIN_FILES_FOR_MULTI_THREADING")
	if err != nil {
		return Config{}, err
	}

	cfg.BatchSize, err = parsePositiveInt(getenv("BATCH_SIZE", "1000"), "BATCH_SIZE")
	if err != nil {
		return Config{}, err
	}

	delay, err := parseNonNegativeInt(getenv("BATCH_DELAY_SECONDS", "5"), "BATCH_DELAY_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.BatchDelay = time.Duration(delay) * time.Second

	cfg.PoolSize, err = parsePositiveInt(getenv("CONNECTION_POOL_SIZE", "10"), "CONNECTION_POOL_SIZE")
	if err != nil {
		return Config{}, err
	}

	cfg.MaxRetries, err = parsePositiveInt(getenv("CONNECTION_POOL_MAX_RETRIES", "3"), "CONNECTION_POOL_MAX_RETRIES")
	if err != nil {
		return Config{}, err
	}

	connTimeout, err := parsePositiveInt(getenv("CONNECTION_POOL_TIMEOUT_SECONDS", "30"), "CONNECTION_POOL_TIMEOUT_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.ConnTimeout = time.Duration(connTimeout) * time.Second

	convTimeout, err := parsePositiveInt(getenv("CONVERT_TIMEOUT_SECONDS", "120"), "CONVERT_TIMEOUT_SECONDS")
	if err != nil {
		return Config{}, err
	}
	cfg.ConvertTimeout = time.Duration(convTimeout) * time.Second

	return cfg, nil
}

// Warnings reports tuning values outside their recommended ranges. They are
// advisory only; the worker starts with whatever was configured.
func (c Config) Warnings() []string {
	var w []string
	switch {
	case c.BatchSize < 100:
		w = append(w, "BATCH_SIZE below 100 spends most of the run on batch overhead; consider at least 100")
	case c.BatchSize > 10000:
		w = append(w, "BATCH_SIZE above 10000 risks memory pressure on large documents; consider a smaller batch")
	}
	switch {
	case c.MaxWorkers < 4:
		w = append(w, "MAX_WORKER_THREADS below 4 leaves the connection pool idle; consider at least 4")
	case c.MaxWorkers > 32:
		w = append(w, "MAX_WORKER_THREADS above 32 risks exhausting connections and converter processes; consider at most 32")
	}
	switch {
	case c.BatchDelay < time.Second:
		w = append(w, "BATCH_DELAY_SECONDS below 1 gives the storage service no breathing room between batches")
	case c.BatchDelay > 30*time.Second:
		w = append(w, "BATCH_DELAY_SECONDS above 30 mostly adds idle time; consider a shorter delay")
	}
	return w
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseNonNegativeInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %d)", name, v)
	}
	return v, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

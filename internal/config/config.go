// Package config loads fieldship settings from an optional TOML file and
// FIELDSHIP_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// EnvConfigFile names the optional TOML file. Environment variables override
// values from the file.
const EnvConfigFile = "FIELDSHIP_CONFIG"

type Config struct {
	DatabaseURL    string `toml:"database_url"`    // FIELDSHIP_DATABASE_URL (required)
	DatabaseSchema string `toml:"database_schema"` // FIELDSHIP_DATABASE_SCHEMA (default "public")
	Environment    string `toml:"environment"`     // FIELDSHIP_ENVIRONMENT (required)

	LogOnly bool   `toml:"log_only"` // FIELDSHIP_LOG_ONLY (default true)
	Async   bool   `toml:"async"`    // FIELDSHIP_ASYNC (default true)
	NATSURL string `toml:"nats_url"` // FIELDSHIP_NATS_URL

	FieldsDir           string `toml:"fields_dir"`           // FIELDSHIP_FIELDS_DIR (default "config/analytics")
	PseudonymisationKey string `toml:"pseudonymisation_key"` // FIELDSHIP_PSEUDONYMISATION_KEY (optional)

	// Backfill and worker settings
	BatchSize         int           `toml:"batch_size"`         // FIELDSHIP_BATCH_SIZE (default 200)
	WorkerConcurrency int           `toml:"worker_concurrency"` // FIELDSHIP_WORKER_CONCURRENCY (default 4)
	MaxDeliver        int           `toml:"max_deliver"`        // FIELDSHIP_MAX_DELIVER (default 5)
	HealthAddr        string        `toml:"health_addr"`        // FIELDSHIP_HEALTH_ADDR (default ":9090")
	BackfillInterval  time.Duration `toml:"backfill_interval"`  // FIELDSHIP_BACKFILL_INTERVAL (default 0 = disabled)
	BackfillEntities  []string      `toml:"backfill_entities"`  // FIELDSHIP_BACKFILL_ENTITIES (comma list)
	TrackEntities     []string      `toml:"track_entities"`     // FIELDSHIP_TRACK_ENTITIES (comma list)

	S3 S3Config `toml:"s3"`

	LogLevel string `toml:"log_level"` // FIELDSHIP_LOG_LEVEL (default "info")
}

// S3Config locates the analytics bucket.
type S3Config struct {
	Bucket   string `toml:"bucket"`   // FIELDSHIP_S3_BUCKET (required unless log-only)
	Region   string `toml:"region"`   // FIELDSHIP_S3_REGION (default "us-east-1")
	Endpoint string `toml:"endpoint"` // FIELDSHIP_S3_ENDPOINT (custom endpoint for MinIO)
	Prefix   string `toml:"prefix"`   // FIELDSHIP_S3_PREFIX (default "events/")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		DatabaseSchema:    "public",
		LogOnly:           true,
		Async:             true,
		FieldsDir:         "config/analytics",
		BatchSize:         200,
		WorkerConcurrency: 4,
		MaxDeliver:        5,
		HealthAddr:        ":9090",
		S3:                S3Config{Region: "us-east-1", Prefix: "events/"},
		LogLevel:          "info",
	}
}

// Load reads the config file named by FIELDSHIP_CONFIG (if any), applies
// environment overrides and validates the result. Validation problems are
// returned together as a *model.ConfigurationError.
func Load() (*Config, error) {
	c := Defaults()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfigFile, err)
		}
	}

	cerr := &model.ConfigurationError{}
	c.applyEnv(cerr)
	c.validate(cerr)
	if cerr.HasErrors() {
		return nil, cerr
	}
	return c, nil
}

func (c *Config) applyEnv(cerr *model.ConfigurationError) {
	setString(&c.DatabaseURL, "FIELDSHIP_DATABASE_URL")
	setString(&c.DatabaseSchema, "FIELDSHIP_DATABASE_SCHEMA")
	setString(&c.Environment, "FIELDSHIP_ENVIRONMENT")
	setString(&c.NATSURL, "FIELDSHIP_NATS_URL")
	setString(&c.FieldsDir, "FIELDSHIP_FIELDS_DIR")
	setString(&c.PseudonymisationKey, "FIELDSHIP_PSEUDONYMISATION_KEY")
	setString(&c.HealthAddr, "FIELDSHIP_HEALTH_ADDR")
	setString(&c.S3.Bucket, "FIELDSHIP_S3_BUCKET")
	setString(&c.S3.Region, "FIELDSHIP_S3_REGION")
	setString(&c.S3.Endpoint, "FIELDSHIP_S3_ENDPOINT")
	setString(&c.S3.Prefix, "FIELDSHIP_S3_PREFIX")
	setString(&c.LogLevel, "FIELDSHIP_LOG_LEVEL")
	setList(&c.BackfillEntities, "FIELDSHIP_BACKFILL_ENTITIES")
	setList(&c.TrackEntities, "FIELDSHIP_TRACK_ENTITIES")

	setParsed(cerr, &c.LogOnly, "FIELDSHIP_LOG_ONLY", strconv.ParseBool)
	setParsed(cerr, &c.Async, "FIELDSHIP_ASYNC", strconv.ParseBool)
	setParsed(cerr, &c.BatchSize, "FIELDSHIP_BATCH_SIZE", strconv.Atoi)
	setParsed(cerr, &c.WorkerConcurrency, "FIELDSHIP_WORKER_CONCURRENCY", strconv.Atoi)
	setParsed(cerr, &c.MaxDeliver, "FIELDSHIP_MAX_DELIVER", strconv.Atoi)
	setParsed(cerr, &c.BackfillInterval, "FIELDSHIP_BACKFILL_INTERVAL", time.ParseDuration)
}

func (c *Config) validate(cerr *model.ConfigurationError) {
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			cerr.Settings = append(cerr.Settings, model.FieldError{Field: field, Message: "is required"})
		}
	}
	positive := func(field string, n int) {
		if n <= 0 {
			cerr.Settings = append(cerr.Settings, model.FieldError{Field: field, Message: "must be positive"})
		}
	}

	required("FIELDSHIP_DATABASE_URL", c.DatabaseURL)
	required("FIELDSHIP_ENVIRONMENT", c.Environment)
	required("FIELDSHIP_FIELDS_DIR", c.FieldsDir)
	if !c.LogOnly {
		required("FIELDSHIP_S3_BUCKET", c.S3.Bucket)
		required("FIELDSHIP_S3_REGION", c.S3.Region)
		if c.Async {
			required("FIELDSHIP_NATS_URL", c.NATSURL)
		}
	}
	positive("FIELDSHIP_BATCH_SIZE", c.BatchSize)
	positive("FIELDSHIP_WORKER_CONCURRENCY", c.WorkerConcurrency)
	positive("FIELDSHIP_MAX_DELIVER", c.MaxDeliver)
	if c.BackfillInterval < 0 {
		cerr.Settings = append(cerr.Settings, model.FieldError{Field: "FIELDSHIP_BACKFILL_INTERVAL", Message: "must not be negative"})
	}
	if c.BackfillInterval > 0 && len(c.BackfillEntities) == 0 {
		cerr.Settings = append(cerr.Settings, model.FieldError{Field: "FIELDSHIP_BACKFILL_ENTITIES", Message: "is required when a backfill interval is set"})
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		cerr.Settings = append(cerr.Settings, model.FieldError{Field: "FIELDSHIP_LOG_LEVEL", Message: err.Error()})
	}
}

// RequireQueue reports an error when no job queue is configured.
func (c *Config) RequireQueue() error {
	if c.NATSURL == "" {
		return &model.ConfigurationError{Settings: []model.FieldError{
			{Field: "FIELDSHIP_NATS_URL", Message: "is required to run the job queue"},
		}}
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func setParsed[T any](cerr *model.ConfigurationError, dst *T, key string, parse func(string) (T, error)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parsed, err := parse(v)
	if err != nil {
		cerr.Settings = append(cerr.Settings, model.FieldError{Field: key, Message: fmt.Sprintf("invalid value %q", v)})
		return
	}
	*dst = parsed
}

// Package config loads the training-sync configuration file.
//
// The file is JSON with the uppercase keys the service has always used
// (LOG_FILE, PID_FILE, INDEX, ...). It is read once at startup and the
// resulting Config is immutable for the life of the process. Environment
// variables prefixed TRAINING_SYNC_ override file values.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/ncsa/training-sync/pkg/endpoint"
	"github.com/ncsa/training-sync/pkg/errors"
)

// Defaults mirrored from the original service
const (
	DefaultPeakInterval = 10 * time.Minute
	DefaultOffInterval  = 60 * time.Minute
	DefaultMaxStale     = 24 * time.Hour
	DefaultBatchSize    = 1000
	DefaultImportSource = "Lynda.com"
	DefaultTokenURL     = "https://auth.globus.org/v2/oauth2/token"
	DefaultSinkURL      = "https://search.api.globus.org"
)

// Config is the process configuration, loaded once at startup
type Config struct {
	// Logging and process lifecycle
	LogFile  string
	LogLevel string
	PIDFile  string

	// Sink (search index) settings
	Index        string
	SinkURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string

	// Default destination specifier when -d is not given
	Destination string

	// Optional upstream "last updated" probe
	LastUpdateURL string

	// Record selection
	Affiliations []string
	ImportSource string

	// Ingestion and scheduling
	BatchSize    int
	PeakInterval time.Duration
	OffInterval  time.Duration
	MaxStale     time.Duration

	// Observability
	MetricsAddr string
}

// Load reads the configuration file at path
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("DESTINATION", endpoint.SchemeIndex)
	v.SetDefault("SINK_URL", DefaultSinkURL)
	v.SetDefault("TOKEN_URL", DefaultTokenURL)
	v.SetDefault("IMPORT_SOURCE", DefaultImportSource)
	v.SetDefault("BATCH_SIZE", DefaultBatchSize)
	v.SetDefault("PEAK_SLEEP", DefaultPeakInterval)
	v.SetDefault("OFF_SLEEP", DefaultOffInterval)
	v.SetDefault("MAX_STALE", DefaultMaxStale)
	v.SetDefault("AFFILIATIONS", []string{"ACCESS", "XSEDE"})

	v.SetEnvPrefix("TRAINING_SYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "reading config file").
			WithDetail("path", path)
	}

	cfg := &Config{
		LogFile:       v.GetString("LOG_FILE"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		PIDFile:       v.GetString("PID_FILE"),
		Index:         v.GetString("INDEX"),
		SinkURL:       v.GetString("SINK_URL"),
		ClientID:      v.GetString("CLIENT_ID"),
		ClientSecret:  v.GetString("CLIENT_SECRET"),
		TokenURL:      v.GetString("TOKEN_URL"),
		Destination:   v.GetString("DESTINATION"),
		LastUpdateURL: v.GetString("LAST_UPDATE_URL"),
		Affiliations:  v.GetStringSlice("AFFILIATIONS"),
		ImportSource:  v.GetString("IMPORT_SOURCE"),
		BatchSize:     v.GetInt("BATCH_SIZE"),
		PeakInterval:  v.GetDuration("PEAK_SLEEP"),
		OffInterval:   v.GetDuration("OFF_SLEEP"),
		MaxStale:      v.GetDuration("MAX_STALE"),
		MetricsAddr:   v.GetString("METRICS_ADDR"),
	}

	return cfg, nil
}

// Validate checks that every key the selected destination needs is present
func (c *Config) Validate(destScheme string) error {
	if c.BatchSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "BATCH_SIZE cannot be negative")
	}
	if c.PeakInterval <= 0 || c.OffInterval <= 0 {
		return errors.New(errors.ErrorTypeConfig, "sleep intervals must be positive")
	}
	if c.MaxStale <= 0 {
		return errors.New(errors.ErrorTypeConfig, "MAX_STALE must be positive")
	}

	if destScheme == endpoint.SchemeIndex {
		switch {
		case c.Index == "":
			return errors.New(errors.ErrorTypeConfig, "INDEX is required for the index destination")
		case c.ClientID == "":
			return errors.New(errors.ErrorTypeConfig, "CLIENT_ID is required for the index destination")
		case c.ClientSecret == "":
			return errors.New(errors.ErrorTypeConfig, "CLIENT_SECRET is required for the index destination")
		}
	}

	return nil
}

// Affiliation returns the identifier sent to the source in the client header
func (c *Config) Affiliation() string {
	if len(c.Affiliations) > 0 {
		return c.Affiliations[0]
	}
	return ""
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsa/training-sync/pkg/endpoint"
	"github.com/ncsa/training-sync/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "training_sync.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"LOG_FILE": "/var/log/training-sync/training-sync.log",
		"LOG_LEVEL": "debug",
		"PID_FILE": "/var/run/training-sync.pid",
		"INDEX": "2b9d5a6e-9d7e-4b3f-bb1a-000000000000",
		"CLIENT_ID": "client-abc",
		"CLIENT_SECRET": "secret-xyz",
		"LAST_UPDATE_URL": "https://catalog.example.org/last-update/",
		"AFFILIATIONS": ["ACCESS"],
		"PEAK_SLEEP": "5m",
		"BATCH_SIZE": 500
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "2b9d5a6e-9d7e-4b3f-bb1a-000000000000", cfg.Index)
	assert.Equal(t, "client-abc", cfg.ClientID)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.PeakInterval)

	// defaults fill the gaps
	assert.Equal(t, endpoint.SchemeIndex, cfg.Destination)
	assert.Equal(t, DefaultOffInterval, cfg.OffInterval)
	assert.Equal(t, DefaultMaxStale, cfg.MaxStale)
	assert.Equal(t, DefaultImportSource, cfg.ImportSource)
	assert.Equal(t, "ACCESS", cfg.Affiliation())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, `{"LOG_LEVEL": `)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestValidateIndexDestination(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"complete", func(c *Config) {}, ""},
		{"missing index", func(c *Config) { c.Index = "" }, "INDEX"},
		{"missing client id", func(c *Config) { c.ClientID = "" }, "CLIENT_ID"},
		{"missing client secret", func(c *Config) { c.ClientSecret = "" }, "CLIENT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Index:        "uuid",
				ClientID:     "id",
				ClientSecret: "secret",
				BatchSize:    DefaultBatchSize,
				PeakInterval: DefaultPeakInterval,
				OffInterval:  DefaultOffInterval,
				MaxStale:     DefaultMaxStale,
			}
			tt.mutate(cfg)

			err := cfg.Validate(endpoint.SchemeIndex)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateFileDestinationNeedsNoCredentials(t *testing.T) {
	cfg := &Config{
		BatchSize:    DefaultBatchSize,
		PeakInterval: DefaultPeakInterval,
		OffInterval:  DefaultOffInterval,
		MaxStale:     DefaultMaxStale,
	}
	assert.NoError(t, cfg.Validate(endpoint.SchemeFile))
}

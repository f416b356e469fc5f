package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	CoverFetchTimeout         time.Duration `koanf:"cover_fetch_timeout"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	FileChannelID             int64         `koanf:"file_channel_id"`
	FileFetchTimeout          time.Duration `koanf:"file_fetch_timeout"`
	GatewayBaseURL            string        `koanf:"gateway_base_url"`
	GatewayToken              string        `koanf:"gateway_token"`
	Hostname                  string        `koanf:"-"`
	MatchThreshold            int           `koanf:"match_threshold"`
	MediaDir                  string        `koanf:"media_dir"`
	MediaFetchAttempts        int           `koanf:"media_fetch_attempts"`
	MetadataChannelID         int64         `koanf:"metadata_channel_id"`
	ServerHost                string        `koanf:"server_host"`
	ServerPort                int           `koanf:"server_port"`
	SyncBatchPause            time.Duration `koanf:"sync_batch_pause"`
	SyncBatchSize             int           `koanf:"sync_batch_size"`
	SyncIntervalMinutes       int           `koanf:"sync_interval_minutes"`
}

const defaultConfigFilePath = "/config/config.yaml"

// New loads configuration from an optional YAML file (CONFIG_FILE, defaulting
// to /config/config.yaml) with environment variables taking precedence. Env
// vars map to config keys by lowercasing, e.g. DATABASE_FILE_PATH ->
// database_file_path.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		CoverFetchTimeout:         30 * time.Second,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        3,
		FileFetchTimeout:          60 * time.Second,
		Hostname:                  hostname,
		MatchThreshold:            50,
		MediaDir:                  "./media",
		MediaFetchAttempts:        3,
		ServerPort:                3689,
		SyncBatchPause:            time.Second,
		SyncBatchSize:             50,
		SyncIntervalMinutes:       60,
	}

	k := koanf.New(".")

	configFilePath := os.Getenv("CONFIG_FILE")
	if configFilePath == "" {
		configFilePath = defaultConfigFilePath
	}
	// A missing config file is fine; everything can come from env vars.
	if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(err, "failed to load config file %s", configFilePath)
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	missing := []string{}
	if cfg.DatabaseFilePath == "" {
		missing = append(missing, "DATABASE_FILE_PATH (database_file_path)")
	}
	if cfg.GatewayBaseURL == "" {
		missing = append(missing, "GATEWAY_BASE_URL (gateway_base_url)")
	}
	if cfg.MetadataChannelID == 0 {
		missing = append(missing, "METADATA_CHANNEL_ID (metadata_channel_id)")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SyncInterval is the pause between scheduled auto syncs. Zero disables the
// scheduler.
func (cfg *Config) SyncInterval() time.Duration {
	return time.Duration(cfg.SyncIntervalMinutes) * time.Minute
}

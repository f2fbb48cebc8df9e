package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// LoadConfig reads cfgFile, or bundleslurpd.yaml from the usual places, and
// overlays BUNDLESLURPD_ environment variables (BUNDLESLURPD_SOURCE__DIR and
// so on). A missing default config file is not an error.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bundleslurpd")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bundleslurpd/")
	}

	v.SetEnvPrefix("BUNDLESLURPD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	setDefaults(v)

	for _, key := range []string{
		"node.id",
		"source.type", "source.shards", "source.dir", "source.brokers", "source.topic",
		"warehouse.table", "warehouse.format", "warehouse.compression", "warehouse.sink",
		"checkpoint.path", "checkpoint.endpoints", "checkpoint.username", "checkpoint.password",
		"api.auth_tokens",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Node.ID == "" {
		cfg.Node.ID = uuid.NewString()
	}
	if cfg.Checkpoint.Prefix == "" {
		cfg.Checkpoint.Prefix = "/bundleslurp"
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.type", "file")
	v.SetDefault("source.shards", 1)
	v.SetDefault("source.fetch_timeout", "1s")

	v.SetDefault("batch.max_records", 500)
	v.SetDefault("batch.max_wait", "30s")
	v.SetDefault("batch.poll_interval", "1s")

	v.SetDefault("commit.max_retries", 5)
	v.SetDefault("commit.initial_interval", "1s")
	v.SetDefault("commit.max_interval", "30s")

	v.SetDefault("warehouse.table", "transactions")
	v.SetDefault("warehouse.format", "parquet")
	v.SetDefault("warehouse.sink", "disk")
	v.SetDefault("warehouse.sink_options.path", "warehouse")

	v.SetDefault("checkpoint.backend", "bolt")
	v.SetDefault("checkpoint.path", "checkpoints.db")
	v.SetDefault("checkpoint.dial_timeout", "5s")

	v.SetDefault("schema.limit", 1000)
	v.SetDefault("extractor.rules", "report")
	v.SetDefault("partition.time_zone", "Local")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

package config

import (
	"fmt"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/chtzvt/bundleslurp/internal/api"
	"github.com/chtzvt/bundleslurp/internal/checkpoint"
	"github.com/chtzvt/bundleslurp/internal/commit"
	"github.com/chtzvt/bundleslurp/internal/pipeline"
	"github.com/chtzvt/bundleslurp/internal/schema"
	"github.com/chtzvt/bundleslurp/internal/source"
	"github.com/chtzvt/bundleslurp/internal/warehouse"
)

type NodeConfig struct {
	ID string `mapstructure:"id"`
}

// SourceConfig describes where each shard reads from. A file shard reads
// <dir>/shard-NNN.jsonl; a kafka shard reads the topic partition with the
// same number.
type SourceConfig struct {
	Type         string        `mapstructure:"type"`
	Shards       int           `mapstructure:"shards"`
	Dir          string        `mapstructure:"dir"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ExtractorConfig struct {
	Rules string `mapstructure:"rules"`
}

type PartitionConfig struct {
	// TimeZone is an IANA name, "Local" or "UTC".
	TimeZone string `mapstructure:"time_zone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Node       NodeConfig        `mapstructure:"node"`
	Source     SourceConfig      `mapstructure:"source"`
	Batch      pipeline.Config   `mapstructure:"batch"`
	Commit     commit.Config     `mapstructure:"commit"`
	Warehouse  warehouse.Config  `mapstructure:"warehouse"`
	Checkpoint checkpoint.Config `mapstructure:"checkpoint"`
	Schema     schema.SampleSpec `mapstructure:"schema"`
	Extractor  ExtractorConfig   `mapstructure:"extractor"`
	Partition  PartitionConfig   `mapstructure:"partition"`
	Api        api.Config        `mapstructure:"api"`
	Log        LogConfig         `mapstructure:"log"`
}

// ShardSource returns the source configuration of one shard.
func (c *Config) ShardSource(shard int) source.Config {
	sc := source.Config{Type: c.Source.Type}
	switch c.Source.Type {
	case "kafka":
		sc.Brokers = c.Source.Brokers
		sc.Topic = c.Source.Topic
		sc.Partition = shard
		sc.FetchTimeout = c.Source.FetchTimeout
	default:
		sc.Path = ShardLogPath(c.Source.Dir, shard)
	}
	return sc
}

// ShardLogPath names the append-only log of a file shard.
func ShardLogPath(dir string, shard int) string {
	return filepath.Join(dir, fmt.Sprintf("shard-%03d.jsonl", shard))
}

// Location resolves the processing-date time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Partition.TimeZone {
	case "", "Local", "local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Partition.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("partition.time_zone: %w", err)
		}
		return loc, nil
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Source.Shards <= 0 {
		return fmt.Errorf("source.shards must be positive")
	}
	switch c.Source.Type {
	case "", "file":
		if c.Source.Dir == "" {
			return fmt.Errorf("source.dir is required for file sources")
		}
	case "kafka":
		if len(c.Source.Brokers) == 0 || c.Source.Topic == "" {
			return fmt.Errorf("source.brokers and source.topic are required for kafka sources")
		}
	default:
		return fmt.Errorf("unknown source type: %s", c.Source.Type)
	}
	if c.Warehouse.Table == "" {
		return fmt.Errorf("warehouse.table is required")
	}
	if c.Batch.MaxRecords <= 0 && c.Batch.MaxWait <= 0 {
		return fmt.Errorf("batch.max_records or batch.max_wait must be set")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

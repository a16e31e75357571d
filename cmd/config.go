package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"index-pump/internal/engine"
	"index-pump/internal/transform"
)

// Config is the fully-resolved configuration. Precedence per field:
// flag > INDEX_PUMP_* env > config file > default.
type Config struct {
	Database struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
		Schema string `mapstructure:"schema"`
	} `mapstructure:"database"`
	Tables struct {
		Include             []string `mapstructure:"include"`
		Exclude             []string `mapstructure:"exclude"`
		UpdatedAtCandidates []string `mapstructure:"updated_at_candidates"`
		MappingFile         string   `mapstructure:"mapping_file"`
	} `mapstructure:"tables"`
	Index struct {
		Path   string `mapstructure:"path"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"index"`
	Sync struct {
		BatchSize       int      `mapstructure:"batch_size"`
		TextColumns     string   `mapstructure:"text_columns"`
		ExcludedColumns []string `mapstructure:"excluded_columns"`
	} `mapstructure:"sync"`
	Embedding struct {
		Provider   string `mapstructure:"provider"`
		Endpoint   string `mapstructure:"endpoint"`
		Model      string `mapstructure:"model"`
		APIKey     string `mapstructure:"api_key"`
		Dimensions int    `mapstructure:"dimensions"`
	} `mapstructure:"embedding"`
	Estimate struct {
		MaxWorkers          int `mapstructure:"max_workers"`
		ItemsPerBatch       int `mapstructure:"items_per_batch"`
		LargeTableThreshold int `mapstructure:"large_table_threshold"`
		ChunkSize           int `mapstructure:"chunk_size"`
		SampleLimit         int `mapstructure:"sample_limit"`
	} `mapstructure:"estimate"`
	Pricing struct {
		URL             string  `mapstructure:"url"`
		CachePath       string  `mapstructure:"cache_path"`
		PricePerMillion float64 `mapstructure:"price_per_million"`
	} `mapstructure:"pricing"`
	Log struct {
		File    string `mapstructure:"file"`
		Verbose bool   `mapstructure:"verbose"`
	} `mapstructure:"log"`
	Dashboard struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"dashboard"`
}

func setDefaults() {
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("tables.include", []string{"*"})
	viper.SetDefault("tables.updated_at_candidates",
		[]string{"updated_at", "modified_at", "last_modified", "updatedat", "changed_at"})
	viper.SetDefault("index.path", "./index-pump.db")
	viper.SetDefault("index.prefix", "tbl::")
	viper.SetDefault("sync.batch_size", 500)
	viper.SetDefault("sync.text_columns", transform.TextColumnsTextual)
	viper.SetDefault("embedding.provider", "local")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("estimate.max_workers", 4)
	viper.SetDefault("estimate.items_per_batch", 8)
	viper.SetDefault("estimate.large_table_threshold", 50000)
	viper.SetDefault("estimate.chunk_size", 25000)
	viper.SetDefault("estimate.sample_limit", 0)
	viper.SetDefault("pricing.cache_path", "./index-pump-pricing.json")
}

// LoadConfig resolves and validates the full configuration.
func LoadConfig() (*Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required (flag, INDEX_PUMP_DATABASE_DSN, or config file)")
	}
	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlserver", "mssql", "oracle":
	default:
		return nil, fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	switch cfg.Sync.TextColumns {
	case transform.TextColumnsTextual, transform.TextColumnsAll:
	default:
		return nil, fmt.Errorf("sync.text_columns must be %q or %q", transform.TextColumnsTextual, transform.TextColumnsAll)
	}
	if cfg.Sync.BatchSize <= 0 {
		return nil, fmt.Errorf("sync.batch_size must be positive")
	}
	if cfg.Estimate.ChunkSize <= 0 || cfg.Estimate.LargeTableThreshold <= 0 {
		return nil, fmt.Errorf("estimate.chunk_size and estimate.large_table_threshold must be positive")
	}
	return &cfg, nil
}

// tableMapping is one entry in the optional per-table mapping YAML, keyed by
// "schema.table".
type tableMapping struct {
	IndexRef        string   `yaml:"index_ref"`
	TextColumns     string   `yaml:"text_columns"`
	ExcludedColumns []string `yaml:"excluded_columns"`
}

// loadMappingFile reads per-table overrides. A missing path is not an error;
// a present but unreadable or malformed file is.
func loadMappingFile(path string) (map[string]engine.TableOverride, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	var raw map[string]tableMapping
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file %s: %w", path, err)
	}

	overrides := make(map[string]engine.TableOverride, len(raw))
	for key, m := range raw {
		if m.TextColumns != "" && m.TextColumns != transform.TextColumnsTextual && m.TextColumns != transform.TextColumnsAll {
			return nil, fmt.Errorf("mapping %s: text_columns must be %q or %q", key, transform.TextColumnsTextual, transform.TextColumnsAll)
		}
		overrides[key] = engine.TableOverride{
			IndexRef:        m.IndexRef,
			TextColumnsMode: m.TextColumns,
			ExcludedColumns: m.ExcludedColumns,
		}
	}
	return overrides, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("MAPPHONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mapphone")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".mapphone"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env vars can override
// every key, not only the ones present in a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.engine", cfg.Browser.Engine)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.bin_path", cfg.Browser.BinPath)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.launch_timeout", cfg.Browser.LaunchTimeout)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)

	v.SetDefault("scrape.target_url", cfg.Scrape.TargetURL)
	v.SetDefault("scrape.search_input", cfg.Scrape.SearchInput)
	v.SetDefault("scrape.feed_selector", cfg.Scrape.FeedSelector)
	v.SetDefault("scrape.result_selector", cfg.Scrape.ResultSelector)
	v.SetDefault("scrape.place_prefix", cfg.Scrape.PlacePrefix)
	v.SetDefault("scrape.next_selector", cfg.Scrape.NextSelector)
	v.SetDefault("scrape.heading_selector", cfg.Scrape.HeadingSelector)
	v.SetDefault("scrape.run_timeout", cfg.Scrape.RunTimeout)
	v.SetDefault("scrape.pagination_timeout", cfg.Scrape.PaginationTimeout)
	v.SetDefault("scrape.max_records", cfg.Scrape.MaxRecords)
	v.SetDefault("scrape.search_timeout", cfg.Scrape.SearchTimeout)
	v.SetDefault("scrape.element_timeout", cfg.Scrape.ElementTimeout)
	v.SetDefault("scrape.page_load_timeout", cfg.Scrape.PageLoadTimeout)
	v.SetDefault("scrape.max_attempts", cfg.Scrape.MaxAttempts)
	v.SetDefault("scrape.retry_delay", cfg.Scrape.RetryDelay)
	v.SetDefault("scrape.max_scrolls", cfg.Scrape.MaxScrolls)
	v.SetDefault("scrape.scroll_delay_min", cfg.Scrape.ScrollDelayMin)
	v.SetDefault("scrape.scroll_delay_max", cfg.Scrape.ScrollDelayMax)
	v.SetDefault("scrape.extract_delay_min", cfg.Scrape.ExtractDelayMin)
	v.SetDefault("scrape.extract_delay_max", cfg.Scrape.ExtractDelayMax)
	v.SetDefault("scrape.navigations_per_minute", cfg.Scrape.NavigationsPerMinute)

	v.SetDefault("storage.types", cfg.Storage.Types)
	v.SetDefault("storage.output_dir", cfg.Storage.OutputDir)
	v.SetDefault("storage.phones_file", cfg.Storage.PhonesFile)
	v.SetDefault("storage.websites_file", cfg.Storage.WebsitesFile)
	v.SetDefault("storage.json_file", cfg.Storage.JSONFile)
	v.SetDefault("storage.sqlite_file", cfg.Storage.SQLiteFile)
	v.SetDefault("storage.excel_file", cfg.Storage.ExcelFile)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("queue.workers", cfg.Queue.Workers)
	v.SetDefault("queue.capacity", cfg.Queue.Capacity)
	v.SetDefault("queue.retention", cfg.Queue.Retention)
	v.SetDefault("queue.prune_interval", cfg.Queue.PruneInterval)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.batch_size", cfg.Server.BatchSize)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

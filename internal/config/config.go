package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for MapPhone.
type Config struct {
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"  yaml:"scrape"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Queue   QueueConfig   `mapstructure:"queue"   yaml:"queue"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	Engine        string        `mapstructure:"engine"         yaml:"engine"` // rod, chromedp
	Headless      bool          `mapstructure:"headless"       yaml:"headless"`
	UserAgent     string        `mapstructure:"user_agent"     yaml:"user_agent"`
	BinPath       string        `mapstructure:"bin_path"       yaml:"bin_path"`
	WindowSize    string        `mapstructure:"window_size"    yaml:"window_size"`
	Stealth       bool          `mapstructure:"stealth"        yaml:"stealth"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// ProxyConfig controls proxy rotation across browser sessions.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// ScrapeConfig controls one extraction run: where to go, what to look for,
// and how long to keep trying.
type ScrapeConfig struct {
	TargetURL       string `mapstructure:"target_url"       yaml:"target_url"`
	SearchInput     string `mapstructure:"search_input"     yaml:"search_input"`
	FeedSelector    string `mapstructure:"feed_selector"    yaml:"feed_selector"`
	ResultSelector  string `mapstructure:"result_selector"  yaml:"result_selector"`
	PlacePrefix     string `mapstructure:"place_prefix"     yaml:"place_prefix"`
	NextSelector    string `mapstructure:"next_selector"    yaml:"next_selector"`
	HeadingSelector string `mapstructure:"heading_selector" yaml:"heading_selector"`

	RunTimeout        time.Duration `mapstructure:"run_timeout"        yaml:"run_timeout"`
	PaginationTimeout time.Duration `mapstructure:"pagination_timeout" yaml:"pagination_timeout"`
	MaxRecords        int           `mapstructure:"max_records"        yaml:"max_records"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout"     yaml:"search_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"    yaml:"element_timeout"`
	PageLoadTimeout   time.Duration `mapstructure:"page_load_timeout"  yaml:"page_load_timeout"`

	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"  yaml:"retry_delay"`

	MaxScrolls      int           `mapstructure:"max_scrolls"       yaml:"max_scrolls"`
	ScrollDelayMin  time.Duration `mapstructure:"scroll_delay_min"  yaml:"scroll_delay_min"`
	ScrollDelayMax  time.Duration `mapstructure:"scroll_delay_max"  yaml:"scroll_delay_max"`
	ExtractDelayMin time.Duration `mapstructure:"extract_delay_min" yaml:"extract_delay_min"`
	ExtractDelayMax time.Duration `mapstructure:"extract_delay_max" yaml:"extract_delay_max"`

	NavigationsPerMinute int `mapstructure:"navigations_per_minute" yaml:"navigations_per_minute"`

	Fields FieldRules `mapstructure:"fields" yaml:"fields"`
}

// FieldRules lists the selector strategies for each extracted field, in the
// order they are tried.
type FieldRules struct {
	Name    []ParseRule `mapstructure:"name"    yaml:"name"`
	Website []ParseRule `mapstructure:"website" yaml:"website"`
	Phone   []ParseRule `mapstructure:"phone"   yaml:"phone"`
}

// ParseRule defines a single extraction rule.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Pattern   string `mapstructure:"pattern"   yaml:"pattern"`
}

// StorageConfig controls where collected records are persisted.
type StorageConfig struct {
	Types        []string `mapstructure:"types"         yaml:"types"` // csv, json, sqlite, excel, mongo
	OutputDir    string   `mapstructure:"output_dir"    yaml:"output_dir"`
	PhonesFile   string   `mapstructure:"phones_file"   yaml:"phones_file"`
	WebsitesFile string   `mapstructure:"websites_file" yaml:"websites_file"`
	JSONFile     string   `mapstructure:"json_file"     yaml:"json_file"`
	SQLiteFile   string   `mapstructure:"sqlite_file"   yaml:"sqlite_file"`
	ExcelFile    string   `mapstructure:"excel_file"    yaml:"excel_file"`

	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// QueueConfig controls the background job queue.
type QueueConfig struct {
	Workers       int           `mapstructure:"workers"        yaml:"workers"`
	Capacity      int           `mapstructure:"capacity"       yaml:"capacity"`
	Retention     time.Duration `mapstructure:"retention"      yaml:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
}

// ServerConfig controls the HTTP front end.
type ServerConfig struct {
	Host            string        `mapstructure:"host"             yaml:"host"`
	Port            int           `mapstructure:"port"             yaml:"port"`
	BatchSize       int           `mapstructure:"batch_size"       yaml:"batch_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultUserAgent is a current desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:        "rod",
			Headless:      true,
			UserAgent:     DefaultUserAgent,
			Stealth:       true,
			LaunchTimeout: 60 * time.Second,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Scrape: ScrapeConfig{
			TargetURL:       "https://www.google.com/maps",
			SearchInput:     "#searchboxinput",
			FeedSelector:    "div[role='feed']",
			ResultSelector:  "a[href*='/maps/place/']",
			PlacePrefix:     "https://www.google.com/maps/place/",
			NextSelector:    "button[aria-label='Next']",
			HeadingSelector: "h1",

			RunTimeout:        600 * time.Second,
			PaginationTimeout: 300 * time.Second,
			MaxRecords:        150,
			SearchTimeout:     10 * time.Second,
			ElementTimeout:    5 * time.Second,
			PageLoadTimeout:   30 * time.Second,

			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,

			MaxScrolls:      10,
			ScrollDelayMin:  1 * time.Second,
			ScrollDelayMax:  3 * time.Second,
			ExtractDelayMin: 1 * time.Second,
			ExtractDelayMax: 2 * time.Second,

			NavigationsPerMinute: 30,

			Fields: DefaultFieldRules(),
		},
		Storage: StorageConfig{
			Types:           []string{"csv"},
			OutputDir:       ".",
			PhonesFile:      "phones.csv",
			WebsitesFile:    "websites.csv",
			JSONFile:        "businesses.json",
			SQLiteFile:      "businesses.db",
			ExcelFile:       "businesses.xlsx",
			MongoDatabase:   "mapphone",
			MongoCollection: "businesses",
		},
		Queue: QueueConfig{
			Workers:       1,
			Capacity:      100,
			Retention:     1 * time.Hour,
			PruneInterval: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			BatchSize:       30,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// DefaultFieldRules returns the selector strategies for a Google Maps place
// page. Live CSS rules come first; the XPath rules only run against the page
// snapshot.
func DefaultFieldRules() FieldRules {
	return FieldRules{
		Name: []ParseRule{
			{Name: "heading", Selector: "h1", Type: "css"},
		},
		Website: []ParseRule{
			{Name: "authority_link", Selector: "a[data-item-id*='authority']", Type: "css", Attribute: "href"},
			{Name: "authority_link_xpath", Selector: "//a[contains(@data-item-id,'authority')]", Type: "xpath", Attribute: "href"},
		},
		Phone: []ParseRule{
			{Name: "phone_button", Selector: "button[data-item-id*='phone']", Type: "css", Attribute: "aria-label"},
			{Name: "tel_link", Selector: "//a[starts-with(@href,'tel:')]", Type: "xpath", Attribute: "href"},
		},
	}
}

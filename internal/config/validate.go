package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Browser.Engine != "rod" && cfg.Browser.Engine != "chromedp" {
		return fmt.Errorf("browser.engine must be 'rod' or 'chromedp', got %q", cfg.Browser.Engine)
	}
	if cfg.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be > 0")
	}
	if ws := cfg.Browser.WindowSize; ws != "" {
		var w, h int
		if _, err := fmt.Sscanf(ws, "%d,%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			return fmt.Errorf("browser.window_size must look like 1920,1080, got %q", ws)
		}
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if err := validateScrape(&cfg.Scrape); err != nil {
		return err
	}
	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}

	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be >= 1, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be >= 1, got %d", cfg.Queue.Capacity)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.BatchSize < 1 {
		return fmt.Errorf("server.batch_size must be >= 1, got %d", cfg.Server.BatchSize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateScrape(sc *ScrapeConfig) error {
	if err := ValidateURL(sc.TargetURL); err != nil {
		return fmt.Errorf("scrape.target_url: %w", err)
	}
	required := map[string]string{
		"scrape.search_input":     sc.SearchInput,
		"scrape.result_selector":  sc.ResultSelector,
		"scrape.next_selector":    sc.NextSelector,
		"scrape.heading_selector": sc.HeadingSelector,
	}
	for key, val := range required {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	if sc.RunTimeout <= 0 {
		return fmt.Errorf("scrape.run_timeout must be > 0")
	}
	if sc.PaginationTimeout <= 0 {
		return fmt.Errorf("scrape.pagination_timeout must be > 0")
	}
	if sc.MaxRecords < 1 {
		return fmt.Errorf("scrape.max_records must be >= 1, got %d", sc.MaxRecords)
	}
	if sc.SearchTimeout <= 0 || sc.ElementTimeout <= 0 {
		return fmt.Errorf("scrape.search_timeout and scrape.element_timeout must be > 0")
	}
	if sc.PageLoadTimeout <= 0 {
		return fmt.Errorf("scrape.page_load_timeout must be > 0")
	}
	if sc.MaxAttempts < 1 {
		return fmt.Errorf("scrape.max_attempts must be >= 1, got %d", sc.MaxAttempts)
	}
	if sc.RetryDelay < 0 {
		return fmt.Errorf("scrape.retry_delay must be >= 0")
	}
	if sc.MaxScrolls < 0 {
		return fmt.Errorf("scrape.max_scrolls must be >= 0, got %d", sc.MaxScrolls)
	}
	if sc.ScrollDelayMin < 0 || sc.ScrollDelayMax < sc.ScrollDelayMin {
		return fmt.Errorf("scrape.scroll_delay_min must be >= 0 and <= scrape.scroll_delay_max")
	}
	if sc.ExtractDelayMin < 0 || sc.ExtractDelayMax < sc.ExtractDelayMin {
		return fmt.Errorf("scrape.extract_delay_min must be >= 0 and <= scrape.extract_delay_max")
	}
	if sc.NavigationsPerMinute < 0 {
		return fmt.Errorf("scrape.navigations_per_minute must be >= 0, got %d", sc.NavigationsPerMinute)
	}

	fields := map[string][]ParseRule{
		"name":    sc.Fields.Name,
		"website": sc.Fields.Website,
		"phone":   sc.Fields.Phone,
	}
	for field, rules := range fields {
		if len(rules) == 0 {
			return fmt.Errorf("scrape.fields.%s needs at least one rule", field)
		}
		for i, r := range rules {
			if r.Selector == "" {
				return fmt.Errorf("scrape.fields.%s[%d]: selector is empty", field, i)
			}
			if r.Type != "css" && r.Type != "xpath" {
				return fmt.Errorf("scrape.fields.%s[%d]: type must be 'css' or 'xpath', got %q", field, i, r.Type)
			}
		}
	}
	return nil
}

func validateStorage(st *StorageConfig) error {
	validStorageTypes := map[string]bool{
		"csv": true, "json": true, "sqlite": true, "excel": true, "mongo": true,
	}
	for _, t := range st.Types {
		if !validStorageTypes[t] {
			return fmt.Errorf("storage type %q is not supported (valid: csv, json, sqlite, excel, mongo)", t)
		}
		if t == "mongo" && st.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required when storage.types includes mongo")
		}
	}
	return nil
}

// ValidateURL checks if a URL string is a usable navigation target.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

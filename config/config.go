package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlServer holds HTTP server settings
type TomlServer struct {
	Addr         string `toml:"addr"`
	AllowOrigins string `toml:"allow_origins"`
}

// TomlDatabase holds SQLite settings
type TomlDatabase struct {
	Path string `toml:"path"`
}

// TomlLLM holds the OpenAI-compatible endpoint settings. The API key can
// also be supplied via flag/environment and overrides the file value.
type TomlLLM struct {
	APIBase string   `toml:"api_base"`
	APIKey  string   `toml:"api_key"`
	Models  []string `toml:"models"`
}

// TomlRSS holds ingest settings
type TomlRSS struct {
	UserAgent           string   `toml:"user_agent"`
	MaxArticlesPerFeed  int      `toml:"max_articles_per_feed,omitempty"`
	FetchWorkers        int      `toml:"fetch_workers,omitempty"`
	LanguageDetection   bool     `toml:"language_detection"`
	Languages           []string `toml:"languages,omitempty"`
	ConfidenceThreshold float64  `toml:"confidence_threshold,omitempty"`
}

// TomlFeed is a seed feed source, inserted at startup when its URL is
// not yet known
type TomlFeed struct {
	URL                  string `toml:"url"`
	Name                 string `toml:"name,omitempty"`
	FetchIntervalMinutes int    `toml:"fetch_interval_minutes,omitempty"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server   TomlServer   `toml:"server"`
	Database TomlDatabase `toml:"database"`
	LLM      TomlLLM      `toml:"llm"`
	RSS      TomlRSS      `toml:"rss"`
	Feeds    []TomlFeed   `toml:"feeds"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.fillDefaults()
	return &config, nil
}

// Default returns the configuration used when no file is given.
func Default() *TomlConfig {
	config := &TomlConfig{}
	config.fillDefaults()
	return config
}

func (c *TomlConfig) fillDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.AllowOrigins == "" {
		c.Server.AllowOrigins = "http://localhost:3001"
	}
	if c.Database.Path == "" {
		c.Database.Path = "gleaner.db"
	}
	if c.LLM.APIBase == "" {
		c.LLM.APIBase = "https://api.openai.com/v1"
	}
	if len(c.LLM.Models) == 0 {
		c.LLM.Models = append([]string{}, DefaultModels...)
	}
	if c.RSS.UserAgent == "" {
		c.RSS.UserAgent = "gleaner/1.0 (rss aggregator)"
	}
	if c.RSS.MaxArticlesPerFeed <= 0 {
		c.RSS.MaxArticlesPerFeed = DefaultMaxArticlesPerFeed
	}
	if c.RSS.FetchWorkers <= 0 {
		c.RSS.FetchWorkers = 4
	}
	if c.RSS.ConfidenceThreshold <= 0 {
		c.RSS.ConfidenceThreshold = 0.6
	}
	for i := range c.Feeds {
		if c.Feeds[i].FetchIntervalMinutes <= 0 {
			c.Feeds[i].FetchIntervalMinutes = DefaultFetchIntervalMinutes
		}
	}
}

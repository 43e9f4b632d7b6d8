package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Provider LLMProvider      `mapstructure:"provider"`
	Routing  LLMRoutingConfig `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai or any compatible endpoint
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model to use for each research step
type LLMRoutingConfig struct {
	Generation string `mapstructure:"generation"` // sub-query generation
	Processing string `mapstructure:"processing"` // search-result extraction
	Report     string `mapstructure:"report"`     // final report writing
	Fallback   string `mapstructure:"fallback"`
}

// ResearchConfig bounds the shape and resource usage of a research tree
type ResearchConfig struct {
	DefaultBreadth        int    `mapstructure:"default_breadth"`
	DefaultDepth          int    `mapstructure:"default_depth"`
	Concurrency           int    `mapstructure:"concurrency"`
	ConcurrencyCeiling    int    `mapstructure:"concurrency_ceiling"` // extra headroom cap, 0 = unbounded
	MaxLearnings          int    `mapstructure:"max_learnings"`
	MaxFollowUpQuestions  int    `mapstructure:"max_follow_up_questions"`
	Language              string `mapstructure:"language"`
	SearchLanguage        string `mapstructure:"search_language"`
	FetchPageContent      bool   `mapstructure:"fetch_page_content"`
	FetchMaxChars         int    `mapstructure:"fetch_max_chars"`
	SearchResultsPerQuery int    `mapstructure:"search_results_per_query"`
}

// SearchConfig contains web search provider settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// CacheConfig contains the optional Redis search-result cache settings
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	LogFile      string `mapstructure:"log_file"`
}

func (r ResearchConfig) Validate() error {
	if r.Concurrency <= 0 {
		return fmt.Errorf("research.concurrency must be > 0")
	}
	if r.ConcurrencyCeiling < 0 {
		return fmt.Errorf("research.concurrency_ceiling must be >= 0")
	}
	if r.DefaultBreadth <= 0 || r.DefaultDepth < 0 {
		return fmt.Errorf("research.default_breadth must be > 0 and default_depth >= 0")
	}
	return nil
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serper":
		if s.SerperAPIKey == "" {
			return fmt.Errorf("search.serper_api_key required for serper provider")
		}
	case "brave":
		if s.BraveAPIKey == "" {
			return fmt.Errorf("search.brave_api_key required for brave provider")
		}
	case "":
		return fmt.Errorf("search.provider not configured")
	default:
		return fmt.Errorf("unsupported search provider: %s", s.Provider)
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "120s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.provider.type", "openai")
	viper.SetDefault("llm.provider.timeout", "180s")
	viper.SetDefault("research.default_breadth", 4)
	viper.SetDefault("research.default_depth", 2)
	viper.SetDefault("research.concurrency", 2)
	viper.SetDefault("research.concurrency_ceiling", 0)
	viper.SetDefault("research.max_learnings", 5)
	viper.SetDefault("research.max_follow_up_questions", 3)
	viper.SetDefault("research.language", "en-US")
	viper.SetDefault("research.fetch_max_chars", 25000)
	viper.SetDefault("research.search_results_per_query", 5)
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("cache.ttl", "1h")

	if path == "" {
		viper.AddConfigPath("./config") // path to look for the config file in
		viper.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEEPSCOUT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (DEEPSCOUT_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	return &config
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Board     BoardConfig
	LLM       LLMConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Dataset   DatasetConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

// BoardConfig points at the project board holding deals and work orders.
type BoardConfig struct {
	APIURL           string
	APIKey           string
	APIVersion       string
	DealBoardID      string
	WorkOrderBoardID string
	PageLimit        int
	TimeoutSec       int
	SchemaVersion    string
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	IntentTTL int
}

type SQLiteConfig struct {
	Path string
}

// DatasetConfig controls how often board data is reloaded.
type DatasetConfig struct {
	RefreshSchedule string
	LoadOnStart     bool
	LoadTimeoutSec  int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
	MaxQueryLength       int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags reads configuration, letting --config point at an explicit file.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/intelliquery")

	if flags != nil {
		if path, err := flags.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
		}
		if f := flags.Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, fmt.Errorf("failed to bind port flag: %w", err)
			}
		}
	}

	v.SetEnvPrefix("INTELLIQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate reports every required setting that is still empty.
func (c *Config) Validate() error {
	var missing []string
	if c.Board.APIKey == "" {
		missing = append(missing, "board.apiKey")
	}
	if c.Board.DealBoardID == "" {
		missing = append(missing, "board.dealBoardId")
	}
	if c.Board.WorkOrderBoardID == "" {
		missing = append(missing, "board.workOrderBoardId")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.apiKey")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("board.apiUrl", "https://api.monday.com/v2")
	v.SetDefault("board.apiKey", "")
	v.SetDefault("board.dealBoardId", "")
	v.SetDefault("board.workOrderBoardId", "")
	v.SetDefault("board.apiVersion", "2024-01")
	v.SetDefault("board.pageLimit", 500)
	v.SetDefault("board.timeoutSec", 30)
	v.SetDefault("board.schemaVersion", "v1")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseUrl", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.intentTtl", 3600)

	v.SetDefault("sqlite.path", "./data/intelliquery.db")

	v.SetDefault("dataset.refreshSchedule", "@every 1h")
	v.SetDefault("dataset.loadOnStart", true)
	v.SetDefault("dataset.loadTimeoutSec", 120)

	v.SetDefault("ratelimit.maxRequestsPerMinute", 60)
	v.SetDefault("ratelimit.maxQueryLength", 2000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Generation GenerationConfig `mapstructure:"generation"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Deploy     DeployConfig     `mapstructure:"deploy"`
	Artifact   ArtifactConfig   `mapstructure:"artifact"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	DSN             string        `mapstructure:"dsn"`    // postgres DSN
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// GenerationConfig selects and configures the generation backends.
// Provider is the default backend used when a request names none.
type GenerationConfig struct {
	Provider  string          `mapstructure:"provider"` // openai, assistant, claude
	MaxTokens int             `mapstructure:"max_tokens"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Claude    ClaudeConfig    `mapstructure:"claude"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// AssistantConfig configures the OpenAI Assistants (thread/run/poll) backend.
// MaxPolls bounds the wall-clock wait at roughly MaxPolls * PollInterval.
type AssistantConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	AssistantID  string        `mapstructure:"assistant_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
}

type ClaudeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// WorkspaceConfig controls where materialized projects live and how much of
// them is captured back into job records.
type WorkspaceConfig struct {
	OutputRoot     string        `mapstructure:"output_root"`
	ContentCeiling int64         `mapstructure:"content_ceiling"` // bytes; files above are listed but not captured
	CommandTimeout time.Duration `mapstructure:"command_timeout"` // per external process call
}

type DeployConfig struct {
	Token          string        `mapstructure:"token"` // empty disables deployment
	Scope          string        `mapstructure:"scope"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// ArtifactConfig enables archiving finished project trees to S3-compatible
// object storage, keyed by job id.
type ArtifactConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	ServiceName string `mapstructure:"service_name"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/appforge.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.max_tokens", 4096)
	v.SetDefault("generation.timeout", 120*time.Second)
	v.SetDefault("generation.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.openai.model", "gpt-4o")
	v.SetDefault("generation.assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.assistant.poll_interval", 2*time.Second)
	v.SetDefault("generation.assistant.max_polls", 60)
	v.SetDefault("generation.claude.base_url", "https://api.anthropic.com")
	v.SetDefault("generation.claude.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("workspace.output_root", "./data/projects")
	v.SetDefault("workspace.content_ceiling", 256*1024)
	v.SetDefault("workspace.command_timeout", 5*time.Minute)
	v.SetDefault("deploy.command_timeout", 10*time.Minute)
	v.SetDefault("artifact.enabled", false)
	v.SetDefault("artifact.use_ssl", false)
	v.SetDefault("artifact.region", "us-east-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service_name", "appforge")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("generation.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("generation.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("generation.assistant.api_key", "OPENAI_API_KEY")
	v.BindEnv("generation.assistant.assistant_id", "OPENAI_ASSISTANT_ID")
	v.BindEnv("generation.claude.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("deploy.token", "VERCEL_TOKEN")
	v.BindEnv("deploy.scope", "VERCEL_SCOPE")
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("artifact.endpoint", "ARTIFACT_ENDPOINT")
	v.BindEnv("artifact.access_key", "ARTIFACT_ACCESS_KEY")
	v.BindEnv("artifact.secret_key", "ARTIFACT_SECRET_KEY")
	v.BindEnv("artifact.bucket", "ARTIFACT_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

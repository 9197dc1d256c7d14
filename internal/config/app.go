package config

import (
	"chat-gateway/internal/logger"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server     ServerConfig  `yaml:"server"`
	Backend    BackendConfig `yaml:"backend"`
	Search     SearchConfig  `yaml:"search"`
	Storage    StorageConfig `yaml:"storage"`
	Prompt     PromptConfig  `yaml:"prompt"`
	Quota      QuotaConfig   `yaml:"quota"`
	Auth       AuthConfig    `yaml:"auth"`
	ModelsPath string        `yaml:"models_path"`

	Models *ModelsConfig `yaml:"-"`
	// Path is the file the configuration was read from, watched for prompt changes.
	Path string `yaml:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string        `yaml:"port"`
	AllowedOrigin string        `yaml:"allowed_origin"`
	AutosaveEvery time.Duration `yaml:"autosave_every"`
}

// BackendConfig describes the Ollama-compatible completion hosts.
// A host set to "none" is disabled.
type BackendConfig struct {
	Host1   string        `yaml:"host1"`
	Host2   string        `yaml:"host2"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// SearchConfig holds the external search service endpoints
type SearchConfig struct {
	WebsearchURL      string        `yaml:"websearch_url"`
	DeepsearchURL     string        `yaml:"deepsearch_url"`
	WebsearchTimeout  time.Duration `yaml:"websearch_timeout"`
	DeepsearchTimeout time.Duration `yaml:"deepsearch_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	DataDir  string         `yaml:"data_dir"`
	Badger   BadgerConfig   `yaml:"badger"`
	Postgres DatabaseConfig `yaml:"postgres"`
}

// BadgerConfig holds embedded KV store options
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// PromptConfig is the hot-reloadable part of the configuration
type PromptConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	Language     string `yaml:"language"`
	Timezone     string `yaml:"timezone"`
}

// QuotaConfig lists the local hours at which used tokens are reset
type QuotaConfig struct {
	ResetHours []int `yaml:"reset_hours"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte        `yaml:"-"`
	TokenExpiration time.Duration `yaml:"token_expiration"`
	AdminUsername   string        `yaml:"admin_username"`
	AdminPassword   string        `yaml:"admin_password"`
}

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
)

// Default returns the configuration used when no file is present
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:          "8080",
			AllowedOrigin: "*",
			AutosaveEvery: time.Hour,
		},
		Backend: BackendConfig{
			Host1:   "localhost",
			Host2:   "none",
			Port:    11434,
			Timeout: 5 * time.Minute,
		},
		Search: SearchConfig{
			WebsearchURL:      "http://localhost:53564",
			DeepsearchURL:     "http://localhost:6456",
			WebsearchTimeout:  60 * time.Second,
			DeepsearchTimeout: 10 * time.Minute,
			RequestsPerSecond: 2,
		},
		Storage: StorageConfig{
			Driver:  StorageFile,
			DataDir: "data",
			Badger:  BadgerConfig{Path: "data/badger"},
			Postgres: DatabaseConfig{
				Host:     "postgres",
				Port:     "5432",
				User:     "postgres",
				Password: "postgres",
				Name:     "chatgateway",
				SSLMode:  "disable",
			},
		},
		Prompt: PromptConfig{
			SystemPrompt: defaultSystemPrompt,
			Language:     "English",
			Timezone:     "Local",
		},
		Quota: QuotaConfig{ResetHours: []int{0, 12}},
		Auth: AuthConfig{
			TokenExpiration: 24 * time.Hour,
			AdminUsername:   "admin",
		},
		ModelsPath: "config/models.json",
	}
}

// LoadConfig reads the YAML file at path, applies environment overrides and validates the result.
// A missing or unparsable file is not fatal: defaults are used instead.
func LoadConfig(path string) (*AppConfig, error) {
	config := Default()
	config.Path = path

	if err := readFile(path, config); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Log.WithField("path", path).Warn("Config file not found, using defaults")
		} else {
			logger.Log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Config file unreadable, using defaults")
			config = Default()
			config.Path = path
		}
	}

	applyEnv(config)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}
	config.Auth.JWTSecret = []byte(jwtSecret)

	if err := config.validate(); err != nil {
		return nil, err
	}

	modelsConfig, err := NewModelsConfig(config.ModelsPath)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"path": config.ModelsPath, "error": err}).Warn("Models config unavailable, starting with an empty catalogue")
		modelsConfig = &ModelsConfig{}
	}
	config.Models = modelsConfig

	return config, nil
}

// LoadPrompt re-reads only the prompt section of the file at path.
// Unlike LoadConfig, any read or parse error is returned.
func LoadPrompt(path string) (PromptConfig, error) {
	config := Default()
	if err := readFile(path, config); err != nil {
		return PromptConfig{}, err
	}
	applyPromptEnv(&config.Prompt)
	return config.Prompt, nil
}

func readFile(path string, config *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(config *AppConfig) {
	config.Server.Port = getEnvOrDefault("SERVER_PORT", config.Server.Port)
	config.Server.AllowedOrigin = getEnvOrDefault("ALLOWED_ORIGIN", config.Server.AllowedOrigin)

	config.Backend.Host1 = getEnvOrDefault("OLLAMA_HOST1", config.Backend.Host1)
	config.Backend.Host2 = getEnvOrDefault("OLLAMA_HOST2", config.Backend.Host2)
	config.Backend.Port = getEnvAsInt("OLLAMA_PORT", config.Backend.Port)
	config.Backend.Timeout = getEnvAsDuration("OLLAMA_TIMEOUT", config.Backend.Timeout)

	config.Search.WebsearchURL = getEnvOrDefault("WEBSEARCH_URL", config.Search.WebsearchURL)
	config.Search.DeepsearchURL = getEnvOrDefault("DEEPSEARCH_URL", config.Search.DeepsearchURL)
	config.Search.WebsearchTimeout = getEnvAsDuration("WEBSEARCH_TIMEOUT", config.Search.WebsearchTimeout)
	config.Search.DeepsearchTimeout = getEnvAsDuration("DEEPSEARCH_TIMEOUT", config.Search.DeepsearchTimeout)
	config.Search.RequestsPerSecond = getEnvAsFloat("SEARCH_REQUESTS_PER_SECOND", config.Search.RequestsPerSecond)

	config.Storage.Driver = getEnvOrDefault("STORAGE_DRIVER", config.Storage.Driver)
	config.Storage.DataDir = getEnvOrDefault("DATA_DIR", config.Storage.DataDir)
	config.Storage.Badger.Path = getEnvOrDefault("BADGER_PATH", config.Storage.Badger.Path)
	config.Storage.Postgres.Host = getEnvOrDefault("DB_HOST", config.Storage.Postgres.Host)
	config.Storage.Postgres.Port = getEnvOrDefault("DB_PORT", config.Storage.Postgres.Port)
	config.Storage.Postgres.User = getEnvOrDefault("DB_USER", config.Storage.Postgres.User)
	config.Storage.Postgres.Password = getEnvOrDefault("DB_PASSWORD", config.Storage.Postgres.Password)
	config.Storage.Postgres.Name = getEnvOrDefault("DB_NAME", config.Storage.Postgres.Name)
	config.Storage.Postgres.SSLMode = getEnvOrDefault("DB_SSLMODE", config.Storage.Postgres.SSLMode)

	applyPromptEnv(&config.Prompt)

	config.Auth.TokenExpiration = getEnvAsDuration("JWT_TOKEN_EXPIRATION", config.Auth.TokenExpiration)
	config.Auth.AdminUsername = getEnvOrDefault("ADMIN_USERNAME", config.Auth.AdminUsername)
	config.Auth.AdminPassword = getEnvOrDefault("ADMIN_PASSWORD", config.Auth.AdminPassword)

	config.ModelsPath = getEnvOrDefault("MODELS_CONFIG_PATH", config.ModelsPath)
}

func applyPromptEnv(prompt *PromptConfig) {
	prompt.Language = getEnvOrDefault("PROMPT_LANGUAGE", prompt.Language)
	prompt.Timezone = getEnvOrDefault("PROMPT_TIMEZONE", prompt.Timezone)
}

func (c *AppConfig) validate() error {
	switch c.Storage.Driver {
	case StorageFile, StoragePostgres, StorageBadger:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if len(c.Backend.Hosts()) == 0 {
		return fmt.Errorf("at least one backend host must be enabled")
	}
	for _, hour := range c.Quota.ResetHours {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("invalid quota reset hour %d", hour)
		}
	}
	return nil
}

// Hosts returns the base URLs of the enabled backend hosts in fallback order
func (b BackendConfig) Hosts() []string {
	var hosts []string
	for _, host := range []string{b.Host1, b.Host2} {
		host = strings.TrimSpace(host)
		if host == "" || strings.EqualFold(host, "none") {
			continue
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		hosts = append(hosts, fmt.Sprintf("http://%s:%d", host, b.Port))
	}
	return hosts
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

const defaultSystemPrompt = `You are a helpful assistant running on the model %model%.
You are talking to %user-name%, who is located in %user-location%.
The current time is %time%. Always answer in %language%.
%user-prompt%`

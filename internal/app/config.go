package app

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/generation"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/prompt"
	"chat-gateway/internal/service/quota"
	"chat-gateway/internal/service/stats"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for state and persistence
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig

	Backend  llm.Backend
	Registry *generation.Registry
	Ledger   *quota.Ledger
	Stats    *stats.Aggregator
	Prompts  *prompt.Builder
}

// NewConfig wires the shared services around database and backend
func NewConfig(database db.Database, appConfig *config.AppConfig, backend llm.Backend, sampler stats.ResourceSampler) *Config {
	aggregator := stats.NewAggregator(database, sampler)
	return &Config{
		DB:        database,
		AppConfig: appConfig,
		Backend:   backend,
		Registry:  generation.NewRegistry(),
		Ledger:    quota.NewLedger(database, aggregator),
		Stats:     aggregator,
		Prompts:   prompt.NewBuilder(appConfig.Prompt),
	}
}

// ModelsConfig returns the model catalogue, never nil
func (c *Config) ModelsConfig() *config.ModelsConfig {
	if c.AppConfig == nil || c.AppConfig.Models == nil {
		return config.NewStaticModelsConfig()
	}
	return c.AppConfig.Models
}

package config

import (
	"encoding/json"
	"os"
)

// FallbackModel is used when the catalogue is empty
const FallbackModel = "llama3"

// Model represents a model served by the backend
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	err = json.Unmarshal(data, &models)
	if err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// NewStaticModelsConfig builds a catalogue from an in-memory list
func NewStaticModelsConfig(models ...Model) *ModelsConfig {
	return &ModelsConfig{models: models}
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	out := make([]Model, len(mc.models))
	copy(out, mc.models)
	return out
}

// IsValidModel checks if a model ID is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if len(mc.models) > 0 {
		return mc.models[0].ID
	}
	return FallbackModel
}

// Resolve returns requested when it is configured and the default model otherwise
func (mc *ModelsConfig) Resolve(requested string) string {
	if requested != "" && mc.IsValidModel(requested) {
		return requested
	}
	return mc.GetDefaultModel()
}

package api

import "slices"

// ModelConfig is the document served at GET /config.json.
type ModelConfig struct {
	AvailableModels []string `json:"available_models"`
	CurrentModel    string   `json:"current_model"`
}

// Has reports whether name is one of the available models.
func (c *ModelConfig) Has(name string) bool {
	return slices.Contains(c.AvailableModels, name)
}

// Clone returns a deep copy so callers can hand the config out without sharing the slice.
func (c *ModelConfig) Clone() *ModelConfig {
	return &ModelConfig{
		AvailableModels: slices.Clone(c.AvailableModels),
		CurrentModel:    c.CurrentModel,
	}
}

// SwitchResponse is returned by POST /api/switch_model.
type SwitchResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

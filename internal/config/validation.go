package config

import "fmt"

// ValidationConfig shapes the quarantine discipline (spec §4.1, §4.4).
type ValidationConfig struct {
	StrictMode        bool `yaml:"strict_mode"`
	QuarantineEnabled bool `yaml:"quarantine_enabled"`
	MaxErrorsPerBatch int  `yaml:"max_errors_per_batch"`
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		StrictMode:        true,
		QuarantineEnabled: true,
		MaxErrorsPerBatch: 100,
	}
}

func (v ValidationConfig) Validate() error {
	if v.MaxErrorsPerBatch < 0 {
		return fmt.Errorf("validation.max_errors_per_batch must be >= 0, got %d", v.MaxErrorsPerBatch)
	}
	return nil
}

// ChunkingConfig shapes the adapter's date-range splitting (spec §4.2).
type ChunkingConfig struct {
	ChunkDays int `yaml:"chunk_days"`
}

func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{ChunkDays: 1}
}

func (c ChunkingConfig) Validate() error {
	if c.ChunkDays <= 0 {
		return fmt.Errorf("chunking.chunk_days must be positive, got %d", c.ChunkDays)
	}
	return nil
}

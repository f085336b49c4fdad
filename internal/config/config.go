// Package config implements the Config Model (C1): typed job/system/retry/
// validation settings loaded from layered sources — a YAML system file, a
// YAML jobs file, and environment-only secrets. Modeled on the teacher's
// internal/config/providers.go: read the file, unmarshal into a typed
// struct, then Validate() once at load time so failures are fatal before
// any work starts.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SystemConfig is the top-level, per-process configuration (spec §4.1).
type SystemConfig struct {
	Retry      RetryConfig      `yaml:"retry"`
	Validation ValidationConfig `yaml:"validation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Storage    StorageConfig    `yaml:"storage"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
}

// StorageConfig names the target database. Connection secrets are read
// only from TIMESCALEDB_{HOST,PORT,DB,USER,PASSWORD} (spec §6); nothing
// sensitive is accepted from YAML.
type StorageConfig struct {
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	BatchRows    int    `yaml:"batch_rows"`
}

func (s StorageConfig) withDefaults() StorageConfig {
	if s.SSLMode == "" {
		s.SSLMode = "disable"
	}
	if s.MaxOpenConns <= 0 {
		s.MaxOpenConns = 10
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = 5
	}
	if s.BatchRows <= 0 {
		s.BatchRows = 1000
	}
	return s
}

// QuarantineConfig shapes the Quarantine Sink (C6).
type QuarantineConfig struct {
	BaseDir         string `yaml:"base_dir"`
	RetentionDays   int    `yaml:"retention_days"`
}

func (q QuarantineConfig) withDefaults() QuarantineConfig {
	if q.BaseDir == "" {
		q.BaseDir = "dlq"
	}
	if q.RetentionDays <= 0 {
		q.RetentionDays = 30
	}
	return q
}

// DatabaseSecrets holds connection credentials read only from the
// environment, per spec §6 ("No secrets are read from YAML").
type DatabaseSecrets struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
}

// VendorSecrets holds vendor API credentials read only from the
// environment.
type VendorSecrets struct {
	APIKey string
}

// LoadDatabaseSecrets reads TIMESCALEDB_* from the environment. A missing
// required variable is a fatal Config error (spec §7).
func LoadDatabaseSecrets() (DatabaseSecrets, error) {
	s := DatabaseSecrets{
		Host:     os.Getenv("TIMESCALEDB_HOST"),
		Port:     os.Getenv("TIMESCALEDB_PORT"),
		DB:       os.Getenv("TIMESCALEDB_DB"),
		User:     os.Getenv("TIMESCALEDB_USER"),
		Password: os.Getenv("TIMESCALEDB_PASSWORD"),
	}
	var missing []string
	for name, v := range map[string]string{
		"TIMESCALEDB_HOST": s.Host,
		"TIMESCALEDB_DB":   s.DB,
		"TIMESCALEDB_USER": s.User,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return DatabaseSecrets{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if s.Port == "" {
		s.Port = "5432"
	}
	return s, nil
}

// LoadVendorSecrets reads DATABENTO_API_KEY from the environment.
func LoadVendorSecrets() (VendorSecrets, error) {
	key := os.Getenv("DATABENTO_API_KEY")
	if key == "" {
		return VendorSecrets{}, fmt.Errorf("missing required environment variable: DATABENTO_API_KEY")
	}
	return VendorSecrets{APIKey: key}, nil
}

// LoadSystemConfig reads and validates the system YAML file, applying
// defaults for anything left unset.
func LoadSystemConfig(path string) (SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("failed to read system config: %w", err)
	}

	cfg := SystemConfig{
		Retry:      DefaultRetryConfig(),
		Validation: DefaultValidationConfig(),
		Chunking:   DefaultChunkingConfig(),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SystemConfig{}, fmt.Errorf("failed to parse system config: %w", err)
	}
	cfg.Storage = cfg.Storage.withDefaults()
	cfg.Quarantine = cfg.Quarantine.withDefaults()

	if err := cfg.Validate(); err != nil {
		return SystemConfig{}, fmt.Errorf("invalid system config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency of the whole system config.
func (c SystemConfig) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Validation.Validate(); err != nil {
		return err
	}
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.Quarantine.RetentionDays <= 0 {
		return fmt.Errorf("quarantine.retention_days must be positive, got %d", c.Quarantine.RetentionDays)
	}
	return nil
}

// JobsFile is the on-disk shape of a jobs YAML document (`list-jobs`,
// `ingest --job`).
type JobsFile struct {
	Jobs []JobSpec `yaml:"jobs"`
}

// LoadJobsFile reads and parses (but does not yet validate individual
// jobs — callers resolve a CalendarFilter per job) a jobs YAML file.
func LoadJobsFile(path string) (JobsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobsFile{}, fmt.Errorf("failed to read jobs file: %w", err)
	}
	var jf JobsFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return JobsFile{}, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	return jf, nil
}

// FindJob looks up a named job within a jobs file.
func (jf JobsFile) FindJob(name string) (JobSpec, error) {
	for _, j := range jf.Jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return JobSpec{}, fmt.Errorf("job %q not found", name)
}

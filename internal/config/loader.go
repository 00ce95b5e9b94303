// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadGlobal loads the global configuration from a YAML file
func LoadGlobal(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyGlobalDefaults(&cfg)
	return &cfg, nil
}

// LoadJob loads a job configuration from a YAML file
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file: %w", err)
	}

	if job.Name == "" {
		base := filepath.Base(path)
		job.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	return &job, nil
}

// LoadJobsDir loads all jobs from a directory
func LoadJobsDir(dir string) ([]*Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading jobs directory: %w", err)
	}

	var jobs []*Job
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		job, err := LoadJob(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading job %s: %w", entry.Name(), err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func applyGlobalDefaults(cfg *Global) {
	if cfg.Daemon.LogLevel == "" {
		cfg.Daemon.LogLevel = "info"
	}
	if cfg.Daemon.ListenPort == 0 {
		cfg.Daemon.ListenPort = 9878
	}
	if cfg.Daemon.ListenAddress == "" {
		cfg.Daemon.ListenAddress = "127.0.0.1"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Redaction.MaxConcurrent <= 0 {
		cfg.Redaction.MaxConcurrent = 4
	}
	if cfg.Audit.RetentionDays <= 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.BloomBits == 0 {
		cfg.Audit.BloomBits = 1 << 18
	}
	// Audit: only set default path if enabled and path not set
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			cfg.Audit.Path = filepath.Join(homeDir, ".veil", "audit.db")
		}
	}
}

// internal/config/types.go
package config

// Global configuration loaded from config.yaml
type Global struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redaction RedactionConfig `yaml:"redaction"`
	Audit     AuditConfig     `yaml:"audit"`
}

type DaemonConfig struct {
	LogLevel      string   `yaml:"log_level"`
	ListenAddress string   `yaml:"listen_address"`
	ListenPort    int      `yaml:"listen_port"`
	AllowedRoots  []string `yaml:"allowed_roots"` // paths redactable via the HTTP API; empty = only job watch/scan paths
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
	Debug  bool   `yaml:"debug"`
}

type RedactionConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	BloomBits     uint32 `yaml:"bloom_bits"` // bit-array size of the digest pre-filter
}

// Job configuration loaded from individual YAML files
type Job struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Enabled        bool     `yaml:"enabled"`
	RulesFile      string   `yaml:"rules_file"`
	OutputTemplate string   `yaml:"output_template"` // empty = redact in place
	ScanPaths      []string `yaml:"scan_paths"`      // globs swept by scheduled and start-up runs
	Trigger        Trigger  `yaml:"trigger"`
}

type Trigger struct {
	Type string `yaml:"type"`
	// Filesystem
	WatchPaths      []string `yaml:"watch_paths"`
	OnEvents        []string `yaml:"on_events"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
	DebounceSeconds int      `yaml:"debounce_seconds"`
	Recursive       bool     `yaml:"recursive"`
	// Scheduled
	CronExpression string `yaml:"cron_expression"`
	RunEvery       string `yaml:"run_every"`
	RunAt          string `yaml:"run_at"`
	RunOnStart     bool   `yaml:"run_on_start"`
	// Webhook
	ListenPath     string   `yaml:"listen_path"`
	AllowedMethods []string `yaml:"allowed_methods"`
	RequireSecret  bool     `yaml:"require_secret"`
	SecretHeader   string   `yaml:"secret_header"`
	SecretEnvVar   string   `yaml:"secret_env_var"`
}

// ABOUTME: Configuration loading and parsing for conductor
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete conductor configuration
type Config struct {
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Agents     AgentsConfig     `yaml:"agents"`
	Terminal   TerminalConfig   `yaml:"terminal"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SupervisorConfig holds process-plumbing settings applied to every agent
type SupervisorConfig struct {
	// OutputBufferChunks bounds each agent's output channel depth
	OutputBufferChunks int `yaml:"output_buffer_chunks"`

	// OutputBufferLines bounds the retained recent-output lines per agent
	OutputBufferLines int `yaml:"output_buffer_lines"`

	// KillGracePeriod is the pause between the interrupt and end-of-input
	// bytes of the kill sequence
	KillGracePeriod time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	KillGracePeriodRaw string `yaml:"kill_grace_period"`
}

// AgentsConfig maps agent types to the executables they launch
type AgentsConfig struct {
	ClaudeCommand    string `yaml:"claude_command"`
	GeminiCommand    string `yaml:"gemini_command"`
	DefaultWorkspace string `yaml:"default_workspace"`
}

// TerminalConfig holds the initial pty geometry
type TerminalConfig struct {
	Rows uint16 `yaml:"rows"`
	Cols uint16 `yaml:"cols"`
}

// DatabaseConfig holds the optional session-export sink.
// An empty path disables persistence entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			OutputBufferChunks: 100,
			OutputBufferLines:  10000,
			KillGracePeriod:    500 * time.Millisecond,
			KillGracePeriodRaw: "500ms",
		},
		Agents: AgentsConfig{
			ClaudeCommand: "claude",
			GeminiCommand: "gemini",
		},
		Terminal: TerminalConfig{
			Rows: 24,
			Cols: 80,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. Unset fields keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. If the environment variable is not set, it is
// replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and sane.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Supervisor.OutputBufferChunks <= 0 {
		return fmt.Errorf("supervisor.output_buffer_chunks must be positive")
	}
	if c.Supervisor.OutputBufferLines <= 0 {
		return fmt.Errorf("supervisor.output_buffer_lines must be positive")
	}
	if c.Supervisor.KillGracePeriod <= 0 {
		return fmt.Errorf("supervisor.kill_grace_period must be positive")
	}
	if c.Agents.ClaudeCommand == "" {
		return fmt.Errorf("agents.claude_command is required")
	}
	if c.Agents.GeminiCommand == "" {
		return fmt.Errorf("agents.gemini_command is required")
	}
	if c.Terminal.Rows == 0 || c.Terminal.Cols == 0 {
		return fmt.Errorf("terminal.rows and terminal.cols must be positive")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Supervisor.KillGracePeriodRaw != "" {
		d, err := time.ParseDuration(cfg.Supervisor.KillGracePeriodRaw)
		if err != nil {
			return fmt.Errorf("parsing kill_grace_period %q: %w", cfg.Supervisor.KillGracePeriodRaw, err)
		}
		cfg.Supervisor.KillGracePeriod = d
	}

	return nil
}

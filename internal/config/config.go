package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config represents the full runner configuration
type Config struct {
	Jenkins  JenkinsConfig `yaml:"jenkins"`
	Poll     PollConfig    `yaml:"poll"`
	Outputs  OutputConfig  `yaml:"-"`
	Audit    AuditConfig   `yaml:"audit"`
	LogLevel string        `yaml:"log_level"`
}

// JenkinsConfig represents the Jenkins connection and job selection
type JenkinsConfig struct {
	URL      string `yaml:"url"`
	JobName  string `yaml:"job_name"` // may contain "/" for folder nesting
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
	// Parameters are sent form-encoded to Jenkins, so values are strings.
	// The INPUT_PARAMETERS JSON object may carry any scalar; values keep
	// their JSON literal text.
	Parameters map[string]string `yaml:"parameters"`
	Cookies    map[string]string `yaml:"cookies"`
}

// PollConfig represents the two polling loops and cancellation propagation
type PollConfig struct {
	Wait              bool `yaml:"wait"`
	Timeout           int  `yaml:"timeout"`       // seconds, completion loop; required only when waiting
	StartTimeout      int  `yaml:"start_timeout"` // seconds, queue-to-build loop
	Interval          int  `yaml:"interval"`      // seconds, shared by both loops
	CancelOnInterrupt bool `yaml:"cancel_on_interrupt"`
}

// OutputConfig holds the runner-provided output file paths.
// These always come from the environment, never from the config file.
type OutputConfig struct {
	OutputPath  string
	SummaryPath string
}

// AuditConfig represents the optional run-history database
type AuditConfig struct {
	Path string `yaml:"path"`
}

// IntervalDuration returns the poll interval as a time.Duration
func (p PollConfig) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// TimeoutDuration returns the completion timeout as a time.Duration
func (p PollConfig) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// StartTimeoutDuration returns the queue-to-build timeout as a time.Duration
func (p PollConfig) StartTimeoutDuration() time.Duration {
	return time.Duration(p.StartTimeout) * time.Second
}

// Load builds the configuration: optional YAML file first, then environment
// variable overlay, then defaults, then validation. An empty path skips the
// file and loads from the environment alone.
func Load(filePath string) (*Config, error) {
	config := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // Trusted file path input
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvVars(config); err != nil {
		return nil, err
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// AuditPath resolves just the run-history database path, for commands that
// only read history and need no full trigger configuration
func AuditPath(filePath string) (string, error) {
	config := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // Trusted file path input
		if err != nil {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("INPUT_AUDIT_DB"); v != "" {
		config.Audit.Path = v
	}

	return config.Audit.Path, nil
}

// applyEnvVars overlays INPUT_* environment variables onto the configuration.
// A variable that is unset or empty leaves the file-provided value in place.
func applyEnvVars(config *Config) error {
	if v := os.Getenv("INPUT_URL"); v != "" {
		config.Jenkins.URL = v
	}
	if v := os.Getenv("INPUT_JOB_NAME"); v != "" {
		config.Jenkins.JobName = v
	}
	if v := os.Getenv("INPUT_USERNAME"); v != "" {
		config.Jenkins.Username = v
	}
	if v := os.Getenv("INPUT_API_TOKEN"); v != "" {
		config.Jenkins.Token = v
	}

	if v := os.Getenv("INPUT_PARAMETERS"); v != "" {
		params, err := parseParameterObject(v)
		if err != nil {
			return fmt.Errorf("`parameters` is not a valid JSON object: %w", err)
		}
		config.Jenkins.Parameters = params
	}
	if v := os.Getenv("INPUT_COOKIES"); v != "" {
		cookies := map[string]string{}
		if err := json.Unmarshal([]byte(v), &cookies); err != nil {
			return fmt.Errorf("`cookies` is not a valid JSON object of strings: %w", err)
		}
		config.Jenkins.Cookies = cookies
	}

	var err error
	if config.Poll.Wait, err = boolEnv("INPUT_WAIT", config.Poll.Wait); err != nil {
		return err
	}
	if config.Poll.CancelOnInterrupt, err = boolEnv("INPUT_CANCEL_JENKINS_RUN_ON_GH_CANCEL", config.Poll.CancelOnInterrupt); err != nil {
		return err
	}
	if config.Poll.Timeout, err = intEnv("INPUT_TIMEOUT", config.Poll.Timeout); err != nil {
		return err
	}
	if config.Poll.StartTimeout, err = intEnv("INPUT_START_TIMEOUT", config.Poll.StartTimeout); err != nil {
		return err
	}
	if config.Poll.Interval, err = intEnv("INPUT_INTERVAL", config.Poll.Interval); err != nil {
		return err
	}

	if v := os.Getenv("INPUT_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("INPUT_AUDIT_DB"); v != "" {
		config.Audit.Path = v
	}
	if v := os.Getenv("GITHUB_OUTPUT"); v != "" {
		config.Outputs.OutputPath = v
	}
	if v := os.Getenv("GITHUB_STEP_SUMMARY"); v != "" {
		config.Outputs.SummaryPath = v
	}

	return nil
}

// boolEnv parses a boolean environment variable strictly: true/false/1/0,
// case-insensitive. Unset or empty keeps the fallback. The historical
// "any non-empty string is true" behavior is deliberately not reproduced,
// so INPUT_WAIT=false actually disables waiting.
func boolEnv(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	switch strings.ToLower(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be \"true\" or \"false\", got %q", name, v)
	}
}

// intEnv parses an integer environment variable, keeping the fallback when unset
func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer number of seconds, got %q", name, v)
	}
	return n, nil
}

// parseParameterObject decodes a JSON object into form-ready string values.
// Numbers keep their literal text (42 stays "42", not "42.000000"), booleans
// render as true/false, nested objects and arrays keep their compact JSON.
func parseParameterObject(raw string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	values := map[string]any{}
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case string:
			params[key] = v
		case json.Number:
			params[key] = v.String()
		case bool:
			params[key] = strconv.FormatBool(v)
		case nil:
			params[key] = ""
		default:
			compact, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", key, err)
			}
			params[key] = string(compact)
		}
	}

	return params, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	// Absent parameter/cookie inputs mean empty maps, not nil
	if config.Jenkins.Parameters == nil {
		config.Jenkins.Parameters = map[string]string{}
	}
	if config.Jenkins.Cookies == nil {
		config.Jenkins.Cookies = map[string]string{}
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Jenkins.URL == "" {
		return fmt.Errorf("jenkins url is required (INPUT_URL)")
	}
	if _, err := url.Parse(cfg.Jenkins.URL); err != nil {
		return fmt.Errorf("invalid jenkins url: %v", err)
	}
	if cfg.Jenkins.JobName == "" {
		return fmt.Errorf("job name is required (INPUT_JOB_NAME)")
	}
	if strings.Contains(cfg.Jenkins.JobName, "..") {
		return fmt.Errorf("invalid job name: %q", cfg.Jenkins.JobName)
	}

	if cfg.Poll.StartTimeout < 1 {
		return fmt.Errorf("start timeout must be a positive number of seconds (INPUT_START_TIMEOUT)")
	}
	if cfg.Poll.Interval < 1 {
		return fmt.Errorf("poll interval must be a positive number of seconds (INPUT_INTERVAL)")
	}
	// The completion timeout only matters when the run waits for the result
	if cfg.Poll.Wait && cfg.Poll.Timeout < 1 {
		return fmt.Errorf("timeout must be a positive number of seconds when waiting (INPUT_TIMEOUT)")
	}

	if cfg.Outputs.OutputPath == "" {
		return fmt.Errorf("output file path is required (GITHUB_OUTPUT)")
	}
	if cfg.Outputs.SummaryPath == "" {
		return fmt.Errorf("step summary file path is required (GITHUB_STEP_SUMMARY)")
	}

	return nil
}

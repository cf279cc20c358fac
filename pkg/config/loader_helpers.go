package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Strings and durations override
// when non-empty; numbers and bools override when the key is present so an
// explicit zero sticks.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	base.Models.Fast = mergeTier(base.Models.Fast, override.Models.Fast, raw, "models", "fast")
	base.Models.Capable = mergeTier(base.Models.Capable, override.Models.Capable, raw, "models", "capable")
	if override.Models.CallTimeout != 0 {
		base.Models.CallTimeout = override.Models.CallTimeout
	}
	if override.Models.ExtraKeywords != nil {
		base.Models.ExtraKeywords = append([]string{}, override.Models.ExtraKeywords...)
	}

	base.Providers.OpenAI = mergeProvider(base.Providers.OpenAI, override.Providers.OpenAI, raw, "providers", "openai")
	base.Providers.OpenRouter = mergeProvider(base.Providers.OpenRouter, override.Providers.OpenRouter, raw, "providers", "openrouter")
	base.Providers.Ollama = mergeProvider(base.Providers.Ollama, override.Providers.Ollama, raw, "providers", "ollama")

	if fieldSet(raw, "agent", "max_clarification_retries") {
		base.Agent.MaxClarificationRetries = override.Agent.MaxClarificationRetries
	}
	if fieldSet(raw, "agent", "max_episodic_turns") {
		base.Agent.MaxEpisodicTurns = override.Agent.MaxEpisodicTurns
	}
	if fieldSet(raw, "agent", "session_idle_timeout") {
		base.Agent.SessionIdleTimeout = override.Agent.SessionIdleTimeout
	}
	if override.Agent.SweepInterval != 0 {
		base.Agent.SweepInterval = override.Agent.SweepInterval
	}
	if fieldSet(raw, "agent", "history_limit") {
		base.Agent.HistoryLimit = override.Agent.HistoryLimit
	}

	if fieldSet(raw, "tools", "timeout") {
		base.Tools.Timeout = override.Tools.Timeout
	}
	if fieldSet(raw, "tools", "create_workout_timeout") {
		base.Tools.CreateWorkoutTimeout = override.Tools.CreateWorkoutTimeout
	}
	if fieldSet(raw, "tools", "max_attempts") {
		base.Tools.MaxAttempts = override.Tools.MaxAttempts
	}
	if override.Tools.RetryDelay != 0 {
		base.Tools.RetryDelay = override.Tools.RetryDelay
	}

	if strings.TrimSpace(override.Storage.Path) != "" {
		base.Storage.Path = override.Storage.Path
	}

	if strings.TrimSpace(override.Server.Address) != "" {
		base.Server.Address = override.Server.Address
	}
	if fieldSet(raw, "server", "read_timeout") {
		base.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if fieldSet(raw, "server", "write_timeout") {
		base.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.PingInterval > 0 {
		base.Server.PingInterval = override.Server.PingInterval
	}

	if override.Bus.NATSURL != "" {
		base.Bus.NATSURL = override.Bus.NATSURL
	}
	if override.Bus.SubjectPrefix != "" {
		base.Bus.SubjectPrefix = override.Bus.SubjectPrefix
	}

	if fieldSet(raw, "telemetry", "metrics_enabled") {
		base.Telemetry.MetricsEnabled = override.Telemetry.MetricsEnabled
	}
	if fieldSet(raw, "telemetry", "tracing_enabled") {
		base.Telemetry.TracingEnabled = override.Telemetry.TracingEnabled
	}
	if override.Telemetry.ServiceName != "" {
		base.Telemetry.ServiceName = override.Telemetry.ServiceName
	}

	if override.Logging.Level != "" {
		base.Logging.Level = strings.ToLower(override.Logging.Level)
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if fieldSet(raw, "logging", "development") {
		base.Logging.Development = override.Logging.Development
	}
}

func mergeTier(base, override TierConfig, raw map[string]any, path ...string) TierConfig {
	if strings.TrimSpace(override.Provider) != "" {
		base.Provider = strings.ToLower(override.Provider)
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if fieldSet(raw, append(path, "temperature")...) {
		base.Temperature = override.Temperature
	}
	if fieldSet(raw, append(path, "max_output_tokens")...) {
		base.MaxOutputTokens = override.MaxOutputTokens
	}
	return base
}

func mergeProvider(base, override ProviderSettings, raw map[string]any, path ...string) ProviderSettings {
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if fieldSet(raw, append(path, "requests_per_second")...) {
		base.RequestsPerSecond = override.RequestsPerSecond
	}
	if fieldSet(raw, append(path, "burst")...) {
		base.Burst = override.Burst
	}
	if fieldSet(raw, append(path, "max_retries")...) {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

// fieldSet reports whether the YAML document contains the key path.
func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

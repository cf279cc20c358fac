package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFastModel    = "openai/gpt-4o-mini"
	defaultCapableModel = "openai/gpt-4o"
	defaultOpenAIFast   = "gpt-4o-mini"
	defaultOpenAIStrong = "gpt-4o"
	defaultOllamaModel  = "llama3.1"
)

// Default configuration values exported for documentation and validation
const (
	DefaultProvider                = "openrouter"
	DefaultCallTimeout             = 30 * time.Second
	DefaultMaxClarificationRetries = 3
	DefaultMaxEpisodicTurns        = 100
	DefaultSessionIdleTimeout      = 30 * time.Minute
	DefaultSweepInterval           = time.Minute
	DefaultHistoryLimit            = 50
	DefaultAddress                 = "127.0.0.1:8080"
	DefaultSubjectPrefix           = "repcoach"
	DefaultServiceName             = "repcoach"
	DefaultLogLevel                = "info"
	DefaultToolTimeout             = 10 * time.Second
	DefaultToolMaxAttempts         = 2
	DefaultToolRetryDelay          = 500 * time.Millisecond
	// generationCallBudget is how many backend calls create_workout may
	// spend before its timeout fires: five stages, none retried.
	generationCallBudget = 5
)

// Providers understood by the model client.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// providerDefaultModels are the fast/capable picks when a provider other
// than openrouter is the only one configured.
var providerDefaultModels = map[string][2]string{
	ProviderOpenAI: {defaultOpenAIFast, defaultOpenAIStrong},
	ProviderOllama: {defaultOllamaModel, defaultOllamaModel},
}

// Config represents the complete repcoach configuration
type Config struct {
	Models    ModelConfig     `yaml:"models"`
	Providers ProviderConfig  `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Tools     ToolsConfig     `yaml:"tools"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ModelConfig selects a backend per tier
type ModelConfig struct {
	Fast        TierConfig    `yaml:"fast"`
	Capable     TierConfig    `yaml:"capable"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// ExtraKeywords push matching requests onto the capable tier.
	ExtraKeywords []string `yaml:"extra_keywords"`
}

// TierConfig describes the model behind one tier
type TierConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// ProviderConfig holds credentials and limits per provider
type ProviderConfig struct {
	OpenAI     ProviderSettings `yaml:"openai"`
	OpenRouter ProviderSettings `yaml:"openrouter"`
	Ollama     ProviderSettings `yaml:"ollama"`
}

// ProviderSettings configures one provider endpoint
type ProviderSettings struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxRetries        int     `yaml:"max_retries"`
}

// AgentConfig bounds conversational state
type AgentConfig struct {
	// MaxClarificationRetries <= 0 never abandons a clarification.
	MaxClarificationRetries int `yaml:"max_clarification_retries"`
	// MaxEpisodicTurns <= 0 keeps every turn.
	MaxEpisodicTurns   int           `yaml:"max_episodic_turns"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	HistoryLimit       int           `yaml:"history_limit"`
}

// ToolsConfig bounds tool execution. Retries apply to create_workout only;
// the catalog tools are deterministic.
type ToolsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// CreateWorkoutTimeout zero means five model call timeouts.
	CreateWorkoutTimeout time.Duration `yaml:"create_workout_timeout"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
}

// GenerationTimeout returns the create_workout budget.
func (c *Config) GenerationTimeout() time.Duration {
	if c.Tools.CreateWorkoutTimeout > 0 {
		return c.Tools.CreateWorkoutTimeout
	}
	return generationCallBudget * c.Models.CallTimeout
}

// StorageConfig locates the chat history database
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PingInterval paces websocket keepalives; zero uses the server default.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// BusConfig configures the event bus. An empty NATS URL keeps events in
// process.
type BusConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// TelemetryConfig toggles metrics and tracing
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	ServiceName    string `yaml:"service_name"`
}

// LoggingConfig configures operational logs and the session audit trail
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Dir         string `yaml:"dir"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Models: ModelConfig{
			Fast: TierConfig{
				Provider:        DefaultProvider,
				Model:           defaultFastModel,
				Temperature:     0.2,
				MaxOutputTokens: 512,
			},
			Capable: TierConfig{
				Provider:        DefaultProvider,
				Model:           defaultCapableModel,
				Temperature:     0.4,
				MaxOutputTokens: 2048,
			},
			CallTimeout: DefaultCallTimeout,
		},
		Providers: ProviderConfig{
			OpenAI:     ProviderSettings{RequestsPerSecond: 5, Burst: 5},
			OpenRouter: ProviderSettings{RequestsPerSecond: 5, Burst: 5},
			Ollama:     ProviderSettings{},
		},
		Agent: AgentConfig{
			MaxClarificationRetries: DefaultMaxClarificationRetries,
			MaxEpisodicTurns:        DefaultMaxEpisodicTurns,
			SessionIdleTimeout:      DefaultSessionIdleTimeout,
			SweepInterval:           DefaultSweepInterval,
			HistoryLimit:            DefaultHistoryLimit,
		},
		Tools: ToolsConfig{
			Timeout:     DefaultToolTimeout,
			MaxAttempts: DefaultToolMaxAttempts,
			RetryDelay:  DefaultToolRetryDelay,
		},
		Storage: StorageConfig{
			Path: filepath.Join("~", ".repcoach", "repcoach.db"),
		},
		Server: ServerConfig{
			Address:      DefaultAddress,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
		},
		Bus: BusConfig{
			SubjectPrefix: DefaultSubjectPrefix,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			ServiceName:    DefaultServiceName,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			Dir:   filepath.Join("~", ".repcoach", "logs"),
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.repcoach/config.yaml, ./.repcoach/config.yaml, then the
// environment. REPCOACH_CONFIG names one more file merged last.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".repcoach", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	projectConfigPath := filepath.Join(".", ".repcoach", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if explicit := strings.TrimSpace(os.Getenv("REPCOACH_CONFIG")); explicit != "" {
		if err := loadAndMerge(cfg, expandHomeDir(explicit)); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", explicit, err)
		}
	}

	return finish(cfg, configEnv)
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	return finish(cfg, configEnv)
}

func finish(cfg *Config, configEnv map[string]string) (*Config, error) {
	applyEnvOverrides(cfg, configEnv)
	cfg.alignModelDefaultsWithProviders()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Values from
// ~/.repcoach/config.env apply only when the real environment is unset.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	lookup := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(configEnv[key])
	}

	if v := lookup("REPCOACH_FAST_MODEL"); v != "" {
		cfg.Models.Fast.Provider, cfg.Models.Fast.Model = splitProviderModel(v, cfg.Models.Fast.Provider)
	}
	if v := lookup("REPCOACH_CAPABLE_MODEL"); v != "" {
		cfg.Models.Capable.Provider, cfg.Models.Capable.Model = splitProviderModel(v, cfg.Models.Capable.Provider)
	}
	if v := lookup("REPCOACH_CALL_TIMEOUT"); v != "" {
		if d, err := parseDuration(v); err == nil {
			cfg.Models.CallTimeout = d
		}
	}
	if v := lookup("REPCOACH_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := lookup("REPCOACH_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := lookup("REPCOACH_NATS_URL"); v != "" {
		cfg.Bus.NATSURL = v
	}
	if v := lookup("REPCOACH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := lookup("REPCOACH_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if val, ok := envBool("REPCOACH_TRACING"); ok {
		cfg.Telemetry.TracingEnabled = val
	}

	if v := lookup("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := lookup("OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouter.APIKey = v
	}
	if v := lookup("OLLAMA_HOST"); v != "" {
		cfg.Providers.Ollama.BaseURL = ollamaBaseURL(v)
	}
}

// splitProviderModel accepts "provider:model" or a bare model name.
func splitProviderModel(raw, fallback string) (string, string) {
	if provider, model, ok := strings.Cut(raw, ":"); ok && isKnownProvider(provider) {
		return provider, model
	}
	return fallback, raw
}

// ollamaBaseURL turns OLLAMA_HOST ("host:port" or a URL) into the
// OpenAI-compatible endpoint.
func ollamaBaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isKnownProvider(p string) bool {
	switch p {
	case ProviderOpenAI, ProviderOpenRouter, ProviderOllama:
		return true
	}
	return false
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	for name, tier := range map[string]TierConfig{"fast": c.Models.Fast, "capable": c.Models.Capable} {
		if !isKnownProvider(tier.Provider) {
			return fmt.Errorf("invalid provider for %s tier: %q (valid: openai, openrouter, ollama)", name, tier.Provider)
		}
		if strings.TrimSpace(tier.Model) == "" {
			return fmt.Errorf("%s tier model is required", name)
		}
		if tier.Temperature < 0 || tier.Temperature > 2 {
			return fmt.Errorf("%s tier temperature must be between 0 and 2, got %v", name, tier.Temperature)
		}
		if tier.MaxOutputTokens < 0 {
			return fmt.Errorf("%s tier max_output_tokens cannot be negative", name)
		}
	}
	if c.Models.CallTimeout <= 0 {
		return fmt.Errorf("models.call_timeout must be positive, got %s", c.Models.CallTimeout)
	}

	for name, p := range map[string]ProviderSettings{
		ProviderOpenAI:     c.Providers.OpenAI,
		ProviderOpenRouter: c.Providers.OpenRouter,
		ProviderOllama:     c.Providers.Ollama,
	} {
		if p.RequestsPerSecond < 0 {
			return fmt.Errorf("providers.%s.requests_per_second cannot be negative", name)
		}
	}

	if c.Agent.SessionIdleTimeout < 0 {
		return fmt.Errorf("agent.session_idle_timeout cannot be negative")
	}
	if c.Agent.SweepInterval < 0 {
		return fmt.Errorf("agent.sweep_interval cannot be negative")
	}

	if c.Tools.Timeout < 0 || c.Tools.CreateWorkoutTimeout < 0 || c.Tools.RetryDelay < 0 {
		return fmt.Errorf("tools timeouts and retry_delay cannot be negative")
	}
	if c.Tools.MaxAttempts < 0 {
		return fmt.Errorf("tools.max_attempts cannot be negative")
	}

	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("server.address is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server.address %q: %w", c.Server.Address, err)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.PingInterval < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}

	if strings.TrimSpace(c.Bus.SubjectPrefix) == "" {
		return fmt.Errorf("bus.subject_prefix is required")
	}
	if strings.ContainsAny(c.Bus.SubjectPrefix, " *>") {
		return fmt.Errorf("bus.subject_prefix %q must not contain spaces or wildcards", c.Bus.SubjectPrefix)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}

// ValidationWarnings reports settings that load but are unlikely to work
func (c *Config) ValidationWarnings() []string {
	var warnings []string
	for name, tier := range map[string]TierConfig{"fast": c.Models.Fast, "capable": c.Models.Capable} {
		if !c.Providers.ready(tier.Provider) {
			warnings = append(warnings, fmt.Sprintf("%s tier uses provider %s, which has no API key; the tier will be unavailable.", name, tier.Provider))
		}
	}
	if !isLoopbackBindAddress(c.Server.Address) {
		warnings = append(warnings, fmt.Sprintf("SECURITY: server.address %s is not a loopback address and the API has no authentication.", c.Server.Address))
	}
	return warnings
}

// Provider returns the settings for a provider id.
func (p *ProviderConfig) Provider(id string) ProviderSettings {
	switch id {
	case ProviderOpenAI:
		return p.OpenAI
	case ProviderOpenRouter:
		return p.OpenRouter
	case ProviderOllama:
		return p.Ollama
	}
	return ProviderSettings{}
}

// ReadyProviders returns identifiers for providers that have usable configuration.
func (p *ProviderConfig) ReadyProviders() []string {
	var providers []string
	for _, providerID := range []string{ProviderOpenRouter, ProviderOpenAI, ProviderOllama} {
		if p.ready(providerID) {
			providers = append(providers, providerID)
		}
	}
	return providers
}

func (p *ProviderConfig) ready(providerID string) bool {
	switch providerID {
	case ProviderOpenRouter:
		return p.OpenRouter.APIKey != ""
	case ProviderOpenAI:
		return p.OpenAI.APIKey != ""
	case ProviderOllama:
		return p.Ollama.BaseURL != ""
	default:
		return false
	}
}

// alignModelDefaultsWithProviders moves untouched default tiers off
// openrouter when another provider is the only one configured.
func (c *Config) alignModelDefaultsWithProviders() {
	if c.Providers.ready(ProviderOpenRouter) {
		return
	}
	ready := c.Providers.ReadyProviders()
	if len(ready) == 0 {
		return
	}
	fallback := ready[0]
	models := providerDefaultModels[fallback]
	if c.Models.Fast.Provider == DefaultProvider && c.Models.Fast.Model == defaultFastModel {
		c.Models.Fast.Provider, c.Models.Fast.Model = fallback, models[0]
	}
	if c.Models.Capable.Provider == DefaultProvider && c.Models.Capable.Model == defaultCapableModel {
		c.Models.Capable.Provider, c.Models.Capable.Model = fallback, models[1]
	}
}

func (c *Config) expandPaths() {
	c.Storage.Path = expandHomeDir(c.Storage.Path)
	c.Logging.Dir = expandHomeDir(c.Logging.Dir)
}

func isLoopbackBindAddress(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	path := filepath.Join(home, ".repcoach", "config.env")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	return vars
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

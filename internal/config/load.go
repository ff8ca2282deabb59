package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	configPath string
}

// Option customizes Load, mainly for tests.
type Option func(*loadOptions)

// WithEnv overrides the environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader overrides how the config file is read.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithConfigPath points Load at an explicit config file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// Load builds the runtime configuration: defaults first, then the optional
// YAML config file, then environment overrides.
func Load(opts ...Option) (RuntimeConfig, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := RuntimeConfig{
		Port:               DefaultPort,
		Environment:        DefaultEnvironment,
		LogLevel:           "info",
		LogFormat:          "text",
		MetricsEnabled:     true,
		StaticDir:          DefaultStaticDir,
		FacilitatorURL:     DefaultFacilitatorURL,
		AgentCreationPrice: DefaultAgentCreationPrice,
		TreasuryAddress:    DefaultTreasuryAddress,
		Network:            NetworkMainnet,
		LLMModel:           DefaultLLMModel,
		LLMBaseURL:         DefaultLLMBaseURL,
	}

	if err := applyFile(&cfg, options); err != nil {
		return RuntimeConfig{}, err
	}
	applyEnv(&cfg, options.envLookup)
	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func applyFile(cfg *RuntimeConfig, options loadOptions) error {
	path := options.configPath
	if path == "" {
		if fromEnv, ok := options.envLookup("AOZ_CONFIG"); ok {
			path = strings.TrimSpace(fromEnv)
		}
	}
	if path == "" {
		return nil
	}

	data, err := options.readFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, lookup EnvLookup) {
	setString := func(key string, dst *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
		}
	}
	setBool := func(key string, dst *bool) {
		if value, ok := lookup(key); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				*dst = parsed
			}
		}
	}
	setInt := func(key string, dst *int) {
		if value, ok := lookup(key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
				*dst = parsed
			}
		}
	}

	setString("PORT", &cfg.Port)
	setString("AOZ_ENVIRONMENT", &cfg.Environment)
	setString("AOZ_LOG_LEVEL", &cfg.LogLevel)
	setString("AOZ_LOG_FORMAT", &cfg.LogFormat)
	setBool("AOZ_METRICS_ENABLED", &cfg.MetricsEnabled)
	setString("AOZ_STATIC_DIR", &cfg.StaticDir)
	if origins, ok := lookup("AOZ_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitOrigins(origins)
	}

	setBool("X402_ENABLED", &cfg.X402Enabled)
	setString("FACILITATOR_URL", &cfg.FacilitatorURL)
	setString("AGENT_CREATION_PRICE", &cfg.AgentCreationPrice)
	setString("TREASURY_WALLET_ADDRESS", &cfg.TreasuryAddress)
	setString("AOZ_NETWORK", &cfg.Network)
	setInt("AOZ_VERIFY_TIMEOUT_SECONDS", &cfg.VerifyTimeoutSecs)

	setString("AOZ_LLM_MODEL", &cfg.LLMModel)
	setString("AOZ_OPENAI_API_KEY", &cfg.LLMAPIKey)
	if cfg.LLMAPIKey == "" {
		setString("OPENAI_API_KEY", &cfg.LLMAPIKey)
	}
	setString("AOZ_OPENAI_BASE_URL", &cfg.LLMBaseURL)
}

func normalize(cfg *RuntimeConfig) {
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	cfg.FacilitatorURL = strings.TrimRight(strings.TrimSpace(cfg.FacilitatorURL), "/")
	cfg.TreasuryAddress = strings.TrimSpace(cfg.TreasuryAddress)
	cfg.AgentCreationPrice = strings.TrimSpace(cfg.AgentCreationPrice)
	cfg.LLMAPIKey = strings.TrimSpace(cfg.LLMAPIKey)
	cfg.LLMBaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLMBaseURL), "/")

	if cfg.Network != NetworkDevnet {
		cfg.Network = NetworkMainnet
	}

	filtered := cfg.AllowedOrigins[:0]
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			filtered = append(filtered, trimmed)
		}
	}
	cfg.AllowedOrigins = filtered
}

func validate(cfg RuntimeConfig) error {
	if cfg.X402Enabled {
		if len(cfg.TreasuryAddress) < 32 {
			return fmt.Errorf("x402 requires a valid treasury wallet address")
		}
		if _, err := strconv.ParseUint(cfg.AgentCreationPrice, 10, 64); err != nil {
			return fmt.Errorf("invalid agent creation price %q: %w", cfg.AgentCreationPrice, err)
		}
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

package config

import "time"

// Network identifiers understood by the payment facilitator.
const (
	NetworkMainnet = "solana"
	NetworkDevnet  = "solana-devnet"
)

// USDC mint addresses per network. The mint selects which token the
// facilitator treats as the settlement asset.
const (
	USDCMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCMintDevnet  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	USDCDecimals    = 6
)

// Defaults applied before file and environment overrides.
const (
	DefaultPort               = "8080"
	DefaultEnvironment        = "development"
	DefaultFacilitatorURL     = "https://facilitator.payai.network"
	DefaultAgentCreationPrice = "1000000" // $1.00 USDC in micro-units
	DefaultTreasuryAddress    = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	DefaultVerifyTimeout      = 30 * time.Second
	DefaultLLMModel           = "gpt-4o-mini"
	DefaultLLMBaseURL         = "https://api.openai.com/v1"
	DefaultStaticDir          = "./web/dist"
)

// RuntimeConfig holds every runtime knob for the server.
type RuntimeConfig struct {
	Port           string   `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	MetricsEnabled bool     `yaml:"metrics_enabled"`
	StaticDir      string   `yaml:"static_dir"`

	// x402 payment gate.
	X402Enabled        bool   `yaml:"x402_enabled"`
	FacilitatorURL     string `yaml:"facilitator_url"`
	AgentCreationPrice string `yaml:"agent_creation_price"`
	TreasuryAddress    string `yaml:"treasury_address"`
	Network            string `yaml:"network"`
	VerifyTimeoutSecs  int    `yaml:"verify_timeout_seconds"`

	// AI task execution.
	LLMModel   string `yaml:"llm_model"`
	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMBaseURL string `yaml:"llm_base_url"`
}

// VerifyTimeout returns the configured payment verification bound.
func (c RuntimeConfig) VerifyTimeout() time.Duration {
	if c.VerifyTimeoutSecs <= 0 {
		return DefaultVerifyTimeout
	}
	return time.Duration(c.VerifyTimeoutSecs) * time.Second
}

// USDCMint returns the settlement asset mint for the configured network.
func (c RuntimeConfig) USDCMint() string {
	if c.Network == NetworkDevnet {
		return USDCMintDevnet
	}
	return USDCMintMainnet
}

// IsProduction reports whether the server runs with production settings.
func (c RuntimeConfig) IsProduction() bool {
	return c.Environment == "production"
}

// EnvLookup abstracts os.LookupEnv so tests can inject environments.
type EnvLookup func(key string) (string, bool)

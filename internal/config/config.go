package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Principals []PrincipalConfig `mapstructure:"principals"`
	Vault      VaultConfig       `mapstructure:"vault"`
	Withdrawal WithdrawalConfig  `mapstructure:"withdrawal"`
	Trust      TrustConfig       `mapstructure:"trust"`
	Guardrail  GuardrailConfig   `mapstructure:"guardrail"`
	Chain      ChainConfig       `mapstructure:"chain"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Audit      AuditConfig       `mapstructure:"audit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	RequireAPIKey bool `mapstructure:"require_api_key"`
}

// PrincipalConfig maps an API key to an on-chain identity and a role.
// Role is "owner" or "agent"; owner-class principals may approve
// withdrawals and operate the killswitch.
type PrincipalConfig struct {
	Name    string  `mapstructure:"name"`
	APIKey  string  `mapstructure:"api_key"`
	Address string  `mapstructure:"address"`
	Role    string  `mapstructure:"role"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

type VaultConfig struct {
	DefaultDailyLimit string `mapstructure:"default_daily_limit"`
	DefaultPerTxLimit string `mapstructure:"default_per_tx_limit"`
}

type WithdrawalConfig struct {
	// MultisigThreshold is the amount at or above which a second
	// owner-class approval is required. Empty disables multi-sig.
	MultisigThreshold string `mapstructure:"multisig_threshold"`
}

type TrustConfig struct {
	RequireIdentity    bool     `mapstructure:"require_identity"`
	MinReputationScore int      `mapstructure:"min_reputation_score"`
	RequireValidation  bool     `mapstructure:"require_validation"`
	CacheTTLSeconds    int      `mapstructure:"cache_ttl_seconds"`
	CacheMaxEntries    int      `mapstructure:"cache_max_entries"`
	AllowList          []string `mapstructure:"allow_list"`
	DenyList           []string `mapstructure:"deny_list"`
	// FailOpenWhenUnconfigured keeps the source behavior of trusting by
	// default when no registries are deployed for the active chain. This
	// is a product decision, not a security property; set false to fail
	// closed.
	FailOpenWhenUnconfigured bool `mapstructure:"fail_open_when_unconfigured"`
}

type GuardrailConfig struct {
	Enabled              bool     `mapstructure:"enabled"`
	MaxTxPerHour         int      `mapstructure:"max_tx_per_hour"`
	MaxTxPerDay          int      `mapstructure:"max_tx_per_day"`
	MaxValue             string   `mapstructure:"max_value"`
	AutoApproveThreshold string   `mapstructure:"auto_approve_threshold"`
	AllowList            []string `mapstructure:"allow_list"`
	DenyList             []string `mapstructure:"deny_list"`
}

type ChainConfig struct {
	RPCURL             string `mapstructure:"rpc_url"`
	RelayerURL         string `mapstructure:"relayer_url"`
	ChainID            int64  `mapstructure:"chain_id"`
	IdentityRegistry   string `mapstructure:"identity_registry"`
	ReputationRegistry string `mapstructure:"reputation_registry"`
	ValidationRegistry string `mapstructure:"validation_registry"`
	CallTimeoutMs      int    `mapstructure:"call_timeout_ms"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuditConfig struct {
	LogDir string `mapstructure:"log_dir"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. VAULTGATE_CHAIN_RPC_URL
	viper.SetEnvPrefix("vaultgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.require_api_key", true)
	viper.SetDefault("vault.default_daily_limit", "1.0")
	viper.SetDefault("vault.default_per_tx_limit", "0.1")
	viper.SetDefault("withdrawal.multisig_threshold", "")
	viper.SetDefault("trust.min_reputation_score", 0)
	viper.SetDefault("trust.cache_ttl_seconds", 300)
	viper.SetDefault("trust.cache_max_entries", 1000)
	viper.SetDefault("trust.fail_open_when_unconfigured", true)
	viper.SetDefault("guardrail.enabled", false)
	viper.SetDefault("guardrail.max_tx_per_hour", 0)
	viper.SetDefault("guardrail.max_tx_per_day", 0)
	viper.SetDefault("chain.chain_id", 137)
	viper.SetDefault("chain.call_timeout_ms", 5000)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("audit.log_dir", "./logs")
	viper.SetDefault("database.audit_retention_days", 30)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

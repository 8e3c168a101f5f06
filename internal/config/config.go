// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	RPCURL             string `mapstructure:"rpc_url"`
	WebSocketURL       string `mapstructure:"websocket_url"`
	EnhancedAPIURL     string `mapstructure:"enhanced_api_url"`
	APIKey             string `mapstructure:"api_key"`
	ProgramAddress     string `mapstructure:"program_address"`
	PoolAddress        string `mapstructure:"pool_address"`
	PageLimit          int    `mapstructure:"page_limit"`
	DustThreshold      uint64 `mapstructure:"dust_threshold_lamports"`
	Retries            int    `mapstructure:"retries"`
	RetryDelayMs       int    `mapstructure:"retry_delay_ms"`
	FetchTimeoutSec    int    `mapstructure:"fetch_timeout_sec"`
	DebugLogging       bool   `mapstructure:"debug_logging"`
	LogFile            string `mapstructure:"log_file"`
	ExportDir          string `mapstructure:"export_dir"`
	DisableLiveUpdates bool   `mapstructure:"disable_live_updates"`
}

const (
	DefaultPageLimit     = 25
	DefaultDustThreshold = 10_000
	DefaultRetries       = 3
	DefaultRetryDelayMs  = 500
	DefaultFetchTimeout  = 30
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"page_limit":              DefaultPageLimit,
		"dust_threshold_lamports": DefaultDustThreshold,
		"retries":                 DefaultRetries,
		"retry_delay_ms":          DefaultRetryDelayMs,
		"fetch_timeout_sec":       DefaultFetchTimeout,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.EnhancedAPIURL == "" {
		return errors.New("missing enhanced_api_url in configuration")
	}
	if err := validateURLWithCache(cfg.EnhancedAPIURL, "http"); err != nil {
		return errors.New("invalid enhanced API URL protocol")
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.ProgramAddress == "" {
		return errors.New("missing program_address in configuration")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramAddress); err != nil {
		return errors.New("invalid program_address")
	}
	if cfg.PoolAddress != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.PoolAddress); err != nil {
			return errors.New("invalid pool_address")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.PageLimit <= 0 {
		return errors.New("invalid page_limit")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.RetryDelayMs <= 0 {
		return errors.New("invalid retry_delay_ms")
	}
	if cfg.FetchTimeoutSec <= 0 {
		return errors.New("invalid fetch_timeout_sec")
	}
	return nil
}

// Program returns the validated program address.
func (cfg *Config) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(cfg.ProgramAddress)
}

// Pool returns the configured pool address, if any.
func (cfg *Config) Pool() (solana.PublicKey, bool) {
	if cfg.PoolAddress == "" {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(cfg.PoolAddress), true
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("CURVETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envAPIKey := v.GetString("API_KEY")
	if envAPIKey != "" {
		cfg.APIKey = envAPIKey
	}

	envRPC := v.GetString("RPC_URL")
	if envRPC != "" {
		cfg.RPCURL = strings.TrimSpace(envRPC)
	}
	return nil
}

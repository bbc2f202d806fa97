// Package config_manager loads and persists the session engine configuration.
package config_manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// CurrentConfigVersion is the latest version of the config.json format.
const CurrentConfigVersion = "v0.0.1"

// WalletConfig holds the ecash wallet parameters.
type WalletConfig struct {
	Path               string   `json:"path"`
	AcceptedMints      []string `json:"accepted_mints"`
	AllowUntrustedSwap bool     `json:"allow_untrusted_swap"`
}

// Config holds the configuration parameters for the session engine.
type Config struct {
	ConfigVersion string `json:"config_version"`
	LogLevel      string `json:"log_level"`

	// Relay ports observed across gateway versions. Tried in order.
	RelayPorts []int `json:"relay_ports"`

	// GatewayServicePort serves /  (whoami) and /pubkey on the gateway.
	GatewayServicePort int `json:"gateway_service_port"`

	ProbeTimeoutMs             int `json:"probe_timeout_ms"`
	ConfirmationTimeoutSeconds int `json:"confirmation_timeout_seconds"`
	ConfirmationSkewSeconds    int `json:"confirmation_skew_seconds"`
	CheckIntervalSeconds       int `json:"check_interval_seconds"`
	DismissDelaySeconds        int `json:"dismiss_delay_seconds"`

	// Fallback purchase parameters for gateways detected via the pubkey
	// probe, whose advertisement carries no pricing options.
	DefaultPurchaseAmount uint64 `json:"default_purchase_amount"`
	DefaultMintURL        string `json:"default_mint_url"`

	// AlwaysMaintainSession buys a fresh session as soon as the previous one
	// expires, as long as the network stays up.
	AlwaysMaintainSession bool `json:"always_maintain_session"`

	// WirelessInterface is the interface watched for link state and scanned
	// for gateway beacons.
	WirelessInterface string `json:"wireless_interface"`

	Wallet WalletConfig `json:"wallet"`
}

// envOverrides are applied on top of the config file. Variables use the
// TOLLGATE_ prefix, e.g. TOLLGATE_LOG_LEVEL=debug.
type envOverrides struct {
	LogLevel           string `envconfig:"LOG_LEVEL"`
	GatewayServicePort int    `envconfig:"GATEWAY_SERVICE_PORT"`
	RelayPorts         []int  `envconfig:"RELAY_PORTS"`
	WalletPath         string `envconfig:"WALLET_PATH"`
	WirelessInterface  string `envconfig:"WIRELESS_INTERFACE"`
}

// ConfigManager handles loading and saving of the engine configuration.
type ConfigManager struct {
	filePath string
}

// NewConfigManager creates a new config manager and makes sure a config file
// exists at the given path.
func NewConfigManager(filePath string) (*ConfigManager, error) {
	cm := &ConfigManager{filePath: filePath}
	if err := cm.EnsureDefaultConfig(); err != nil {
		return nil, err
	}
	return cm, nil
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		ConfigVersion:              CurrentConfigVersion,
		LogLevel:                   "info",
		RelayPorts:                 []int{3334, 2121},
		GatewayServicePort:         2122,
		ProbeTimeoutMs:             350,
		ConfirmationTimeoutSeconds: 45,
		ConfirmationSkewSeconds:    5,
		CheckIntervalSeconds:       10,
		DismissDelaySeconds:        2,
		DefaultPurchaseAmount:      21,
		DefaultMintURL:             "https://mint.minibits.cash/Bitcoin",
		AlwaysMaintainSession:      false,
		WirelessInterface:          "wlan0",
		Wallet: WalletConfig{
			Path:          "/etc/tollgate/wallet",
			AcceptedMints: []string{"https://mint.minibits.cash/Bitcoin"},
		},
	}
}

// EnsureDefaultConfig writes the default configuration if no file exists yet.
func (cm *ConfigManager) EnsureDefaultConfig() error {
	if _, err := os.Stat(cm.filePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cm.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return cm.SaveConfig(DefaultConfig())
}

// LoadConfig reads the configuration file and applies environment overrides.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("tollgate", &env); err != nil {
		return nil, fmt.Errorf("failed to process environment overrides: %w", err)
	}
	if env.LogLevel != "" {
		config.LogLevel = env.LogLevel
	}
	if env.GatewayServicePort != 0 {
		config.GatewayServicePort = env.GatewayServicePort
	}
	if len(env.RelayPorts) > 0 {
		config.RelayPorts = env.RelayPorts
	}
	if env.WalletPath != "" {
		config.Wallet.Path = env.WalletPath
	}
	if env.WirelessInterface != "" {
		config.WirelessInterface = env.WirelessInterface
	}

	return config, nil
}

// SaveConfig writes the configuration to disk.
func (cm *ConfigManager) SaveConfig(config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cm.filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"github.com/spf13/viper"
)

const EnvPrefix = "EVMWALLET"

type PolicyMode string

const (
	ModeNotify PolicyMode = "notify"
	ModeAuto   PolicyMode = "auto"
)

type CustodyBackend string

const (
	CustodyKeyring  CustodyBackend = "keyring"
	CustodyFile     CustodyBackend = "file"
	CustodyDisabled CustodyBackend = "disabled"
)

type ChainConfig struct {
	RPCURL           string
	BlockExplorerURL string
}

type SpendingPolicy struct {
	Mode              PolicyMode
	LimitPerTx        *big.Int
	DailyLimit        *big.Int
	AllowedChains     []uint64
	AllowedRecipients []string
}

type CustodyConfig struct {
	Backend       CustodyBackend
	EncryptionKey string
}

type RPCConfig struct {
	Timeout time.Duration
	Retries uint
}

type TelegramConfig struct {
	Token    string
	AdminIDs []int64
}

type Config struct {
	StateDir       string
	DatabaseURL    string
	Chains         map[uint64]ChainConfig
	DefaultChainID uint64
	Policy         SpendingPolicy

	InteractWithUnverifiedContracts bool
	VerifiedTokenAddresses          []string
	VerifiedContractAddresses       []string

	Custody           CustodyConfig
	FeeBufferPermille uint64
	RPC               RPCConfig
	Telegram          TelegramConfig
	LogLevel          string
}

// rawConfig mirrors the file layout.
type rawConfig struct {
	StateDir       string              `mapstructure:"state_dir"`
	DatabaseURL    string              `mapstructure:"database_url"`
	Chains         map[string]rawChain `mapstructure:"chains"`
	DefaultChainID uint64              `mapstructure:"default_chain_id"`
	Policy         struct {
		Mode              string   `mapstructure:"mode"`
		LimitPerTx        string   `mapstructure:"limit_per_tx"`
		DailyLimit        string   `mapstructure:"daily_limit"`
		AllowedChains     []uint64 `mapstructure:"allowed_chains"`
		AllowedRecipients []string `mapstructure:"allowed_recipients"`
	} `mapstructure:"policy"`
	InteractWithUnverifiedContracts bool     `mapstructure:"interact_with_unverified_contracts"`
	VerifiedTokenAddresses          []string `mapstructure:"verified_token_addresses"`
	VerifiedContractAddresses       []string `mapstructure:"verified_contract_addresses"`
	Custody                         struct {
		Backend       string `mapstructure:"backend"`
		EncryptionKey string `mapstructure:"encryption_key"`
	} `mapstructure:"custody"`
	FeeBufferRatio float64 `mapstructure:"fee_buffer_ratio"`
	RPC            struct {
		Timeout time.Duration `mapstructure:"timeout"`
		Retries uint          `mapstructure:"retries"`
	} `mapstructure:"rpc"`
	Telegram struct {
		Token    string  `mapstructure:"token"`
		AdminIDs []int64 `mapstructure:"admin_ids"`
	} `mapstructure:"telegram"`
	LogLevel string `mapstructure:"log_level"`
}

type rawChain struct {
	RPCURL           string `mapstructure:"rpc_url"`
	BlockExplorerURL string `mapstructure:"block_explorer_url"`
}

var knownKeys = map[string]bool{
	"state_dir":                          true,
	"database_url":                       true,
	"chains":                             true,
	"default_chain_id":                   true,
	"policy":                             true,
	"interact_with_unverified_contracts": true,
	"verified_token_addresses":           true,
	"verified_contract_addresses":        true,
	"custody":                            true,
	"fee_buffer_ratio":                   true,
	"rpc":                                true,
	"telegram":                           true,
	"log_level":                          true,
}

// envKeys are bound explicitly: AutomaticEnv only covers keys viper already
// knows from defaults or the file. Chains stay file-only since their keys
// are chain ids.
var envKeys = []string{
	"state_dir",
	"database_url",
	"default_chain_id",
	"policy.mode",
	"policy.limit_per_tx",
	"policy.daily_limit",
	"policy.allowed_chains",
	"policy.allowed_recipients",
	"interact_with_unverified_contracts",
	"verified_token_addresses",
	"verified_contract_addresses",
	"custody.backend",
	"custody.encryption_key",
	"fee_buffer_ratio",
	"rpc.timeout",
	"rpc.retries",
	"telegram.token",
	"telegram.admin_ids",
	"log_level",
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	v.SetDefault("state_dir", filepath.Join(home, ".evm-custody-wallet"))
	v.SetDefault("policy.mode", string(ModeNotify))
	v.SetDefault("interact_with_unverified_contracts", false)
	v.SetDefault("custody.backend", string(CustodyKeyring))
	v.SetDefault("fee_buffer_ratio", 1.2)
	v.SetDefault("rpc.timeout", "15s")
	v.SetDefault("rpc.retries", 3)
	v.SetDefault("log_level", "info")
}

// LoadConfig reads .env, then the config file (path, or config.{json,yaml} in
// the working directory), then EVMWALLET_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return Normalize(v)
}

// Normalize validates everything viper holds and converts it into a Config.
// Unknown top-level keys are rejected.
func Normalize(v *viper.Viper) (*Config, error) {
	var unknown []string
	for _, k := range v.AllKeys() {
		top := strings.SplitN(k, ".", 2)[0]
		if !knownKeys[top] {
			unknown = append(unknown, top)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown configuration keys: %s", strings.Join(unknown, ", "))
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg := &Config{
		StateDir:                        strings.TrimSpace(raw.StateDir),
		DatabaseURL:                     strings.TrimSpace(raw.DatabaseURL),
		Chains:                          make(map[uint64]ChainConfig, len(raw.Chains)),
		DefaultChainID:                  raw.DefaultChainID,
		InteractWithUnverifiedContracts: raw.InteractWithUnverifiedContracts,
		RPC: RPCConfig{
			Timeout: raw.RPC.Timeout,
			Retries: raw.RPC.Retries,
		},
		Telegram: TelegramConfig{
			Token:    raw.Telegram.Token,
			AdminIDs: raw.Telegram.AdminIDs,
		},
		LogLevel: raw.LogLevel,
	}

	if cfg.StateDir == "" {
		return nil, errors.New("state_dir is required")
	}

	for key, c := range raw.Chains {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("chains: invalid chain id %q", key)
		}
		if strings.TrimSpace(c.RPCURL) == "" {
			return nil, fmt.Errorf("chains.%d: rpc_url is required", id)
		}
		cfg.Chains[id] = ChainConfig{
			RPCURL:           strings.TrimSpace(c.RPCURL),
			BlockExplorerURL: strings.TrimSpace(c.BlockExplorerURL),
		}
	}
	if cfg.DefaultChainID != 0 {
		if _, ok := cfg.Chains[cfg.DefaultChainID]; !ok {
			return nil, fmt.Errorf("default_chain_id %d is not configured under chains", cfg.DefaultChainID)
		}
	}

	policy, err := normalizePolicy(raw)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	if cfg.VerifiedTokenAddresses, err = normalizeAddresses("verified_token_addresses", raw.VerifiedTokenAddresses); err != nil {
		return nil, err
	}
	if cfg.VerifiedContractAddresses, err = normalizeAddresses("verified_contract_addresses", raw.VerifiedContractAddresses); err != nil {
		return nil, err
	}

	switch b := CustodyBackend(strings.ToLower(strings.TrimSpace(raw.Custody.Backend))); b {
	case CustodyKeyring, CustodyDisabled:
		cfg.Custody.Backend = b
	case CustodyFile:
		if strings.TrimSpace(raw.Custody.EncryptionKey) == "" {
			return nil, errors.New("custody.encryption_key is required for the file backend")
		}
		cfg.Custody.Backend = b
		cfg.Custody.EncryptionKey = strings.TrimSpace(raw.Custody.EncryptionKey)
	default:
		return nil, fmt.Errorf("custody.backend: unsupported value %q", raw.Custody.Backend)
	}

	if raw.FeeBufferRatio <= 1 || raw.FeeBufferRatio > 10 || math.IsNaN(raw.FeeBufferRatio) {
		return nil, fmt.Errorf("fee_buffer_ratio must be greater than 1 and at most 10, got %v", raw.FeeBufferRatio)
	}
	cfg.FeeBufferPermille = uint64(math.Round(raw.FeeBufferRatio * 1000))

	if cfg.RPC.Timeout <= 0 {
		return nil, errors.New("rpc.timeout must be positive")
	}

	return cfg, nil
}

func normalizePolicy(raw rawConfig) (SpendingPolicy, error) {
	var p SpendingPolicy

	switch m := PolicyMode(strings.ToLower(strings.TrimSpace(raw.Policy.Mode))); m {
	case ModeNotify, ModeAuto:
		p.Mode = m
	default:
		return p, fmt.Errorf("policy.mode: unsupported value %q", raw.Policy.Mode)
	}

	var err error
	if p.LimitPerTx, err = evmutils.ParseOptionalWei(raw.Policy.LimitPerTx); err != nil {
		return p, fmt.Errorf("policy.limit_per_tx: %w", err)
	}
	if p.DailyLimit, err = evmutils.ParseOptionalWei(raw.Policy.DailyLimit); err != nil {
		return p, fmt.Errorf("policy.daily_limit: %w", err)
	}
	p.AllowedChains = raw.Policy.AllowedChains
	if p.AllowedRecipients, err = normalizeAddresses("policy.allowed_recipients", raw.Policy.AllowedRecipients); err != nil {
		return p, err
	}
	return p, nil
}

func normalizeAddresses(field string, in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, s := range in {
		addr, err := evmutils.NormalizeAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, addr.Hex())
	}
	return out, nil
}

// ChainIDs returns the configured chain ids in ascending order.
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for id := range c.Chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

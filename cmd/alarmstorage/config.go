package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/storage/dbconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	payoutNone = "none"
	payoutGAS  = "gas"

	gasDecimals = 8
	maxDecimals = 18
)

// Config is the structure of the YAML configuration file.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	RPC      RPCConfig      `yaml:"rpc"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Contract ContractConfig `yaml:"contract"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// RPCConfig configures connection to the Neo RPC server.
type RPCConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// WalletConfig points to the account signing transactions.
type WalletConfig struct {
	Path     string `yaml:"path"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// ContractConfig locates the AlarmStorage contract.
type ContractConfig struct {
	// Address of the deployed contract, Neo address or LE hex.
	Address string `yaml:"address"`
	// Directory with contract sources and config.yml, used by deploy.
	Sources string `yaml:"sources"`
	// Directory with prebuilt contract.nef and manifest.json, takes
	// precedence over Sources.
	Artefacts string `yaml:"artefacts"`
}

// LedgerConfig configures the local ledger.
type LedgerConfig struct {
	DB dbconfig.DBConfiguration `yaml:"db"`
	// Administrator of the newly created ledger, ignored for existing ones.
	Administrator string `yaml:"administrator"`
	Decimals      int    `yaml:"decimals"`
	MinFee        string `yaml:"min_fee"`
	// Payout is either "none" or "gas". GAS is sent from the wallet account
	// in the latter case.
	Payout string `yaml:"payout"`
}

func defaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level: "info",
		},
		RPC: RPCConfig{
			Endpoint:       "http://localhost:30333",
			DialTimeout:    15 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Contract: ContractConfig{
			Sources: "contracts/alarmstorage",
		},
		Ledger: LedgerConfig{
			DB: dbconfig.DBConfiguration{
				Type: dbconfig.LevelDB,
				LevelDBOptions: dbconfig.LevelDBOptions{
					DataDirectoryPath: "./alarmstorage.db",
				},
			},
			Decimals: maxDecimals,
			MinFee:   "0.001",
			Payout:   payoutNone,
		},
	}
}

// loadConfig reads configuration from the file, missing values are taken from
// defaultConfig. Empty path means default configuration.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := zap.ParseAtomicLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}

	if c.RPC.DialTimeout < 0 || c.RPC.RequestTimeout < 0 {
		return errors.New("rpc: negative timeout")
	}

	if c.Ledger.Decimals < 0 || c.Ledger.Decimals > maxDecimals {
		return fmt.Errorf("ledger.decimals: must be in [0, %d] range", maxDecimals)
	}

	if _, err := c.Ledger.minFee(); err != nil {
		return fmt.Errorf("ledger.min_fee: %w", err)
	}

	switch c.Ledger.Payout {
	case payoutNone:
	case payoutGAS:
		if c.Ledger.Decimals != gasDecimals {
			return fmt.Errorf("ledger.decimals: must be %d for GAS payout", gasDecimals)
		}
	default:
		return fmt.Errorf("ledger.payout: unknown payout %q", c.Ledger.Payout)
	}

	return nil
}

func (c LedgerConfig) minFee() (*big.Int, error) {
	return parseAmount(c.MinFee, c.Decimals)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	return cfg.Build()
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xPolygonHermez/zkevm-tx-engine/db"
	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/features"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/monitor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/provider"
	"github.com/0xPolygonHermez/zkevm-tx-engine/sender"
	server "github.com/0xPolygonHermez/zkevm-tx-engine/server"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/telemetry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/watcher"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	// FlagCfg is the flag for cfg.
	FlagCfg = "cfg"
	// FlagEnvFile is the flag for the .env file.
	FlagEnvFile = "env-file"
	// FlagNoMigrations is the flag for migrations.
	FlagNoMigrations = "no-migrations"

	// EnvPrefix is the prefix of the environment variables overriding the configuration
	EnvPrefix      = "ZKEVM_TX_ENGINE"
	defaultEnvFile = ".env"
)

// Config is the tx engine configuration
type Config struct {
	// Log configuration
	Log log.Config

	// Server configuration
	Server server.Config

	// DB configuration
	DB db.Config

	// Chains are the chains the engine submits to and watches
	Chains []provider.ChainConfig

	// Signer configuration
	Signer signer.Config

	// Executor configuration
	Executor executor.Config

	// Features configuration
	Features features.Config

	// Watcher configuration
	Watcher watcher.Config

	// Monitor configuration
	Monitor monitor.Config

	// Sender configuration
	Sender sender.Config

	// Metrics configuration
	Metrics metrics.Config

	// Telemetry configuration
	Telemetry telemetry.Config
}

// Default parses the default configuration values.
func Default() (*Config, error) {
	var cfg Config
	viper.SetConfigType("toml")

	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads the configuration
func Load(ctx *cli.Context) (*Config, error) {
	if err := loadEnvFile(ctx.String(FlagEnvFile)); err != nil {
		return nil, err
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	configFilePath := ctx.String(FlagCfg)
	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		viper.AddConfigPath(dirName)
		viper.SetConfigName(fileNameWithoutExtension)
		viper.SetConfigType(fileExtension)
	}
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix(EnvPrefix)
	err = viper.ReadInConfig()
	if err != nil {
		_, ok := err.(viper.ConfigFileNotFoundError)
		if ok {
			log.Infof("config file not found")
		} else {
			log.Infof("error reading config file: %v", err)
			return nil, err
		}
	}

	decodeHooks := []viper.DecoderConfigOption{
		// this allows arrays to be decoded from env var separated by ",", example: MY_VAR="value1,value2,value3"
		viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(mapstructure.TextUnmarshallerHookFunc(), mapstructure.StringToSliceHookFunc(","))),
	}

	err = viper.Unmarshal(&cfg, decodeHooks...)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads path into the process environment. The default file is optional.
func loadEnvFile(path string) error {
	if path == "" {
		path = defaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	log.Infof("environment loaded from %s", path)
	return nil
}

func validate(cfg *Config) error {
	if cfg.Monitor.QueueSize < cfg.Monitor.Workers {
		return fmt.Errorf("invalid configuration: Monitor.QueueSize must be greater or equal than Monitor.Workers")
	}
	if cfg.Sender.QueueSize < cfg.Sender.Workers {
		return fmt.Errorf("invalid configuration: Sender.QueueSize must be greater or equal than Sender.Workers")
	}
	switch cfg.DB.Driver {
	case db.DriverMemory, db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("invalid configuration: unknown DB.Driver %q", cfg.DB.Driver)
	}
	if cfg.Sender.Enabled && cfg.Sender.ResendTxsCheckInterval.Duration <= 0 {
		return fmt.Errorf("invalid configuration: Sender.ResendTxsCheckInterval must be positive")
	}

	chainIDs := make(map[uint64]struct{}, len(cfg.Chains))
	for i, chain := range cfg.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("invalid configuration: Chains[%d].ChainID is required", i)
		}
		if chain.URL == "" {
			return fmt.Errorf("invalid configuration: Chains[%d].URL is required", i)
		}
		if _, found := chainIDs[chain.ChainID]; found {
			return fmt.Errorf("invalid configuration: chain %d is configured twice", chain.ChainID)
		}
		chainIDs[chain.ChainID] = struct{}{}
	}
	return nil
}

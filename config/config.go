package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/db"
	"github.com/stakebatch/batch-deposit-service/etherman"
	"github.com/stakebatch/batch-deposit-service/messagepush"
	"github.com/stakebatch/batch-deposit-service/metrics"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/server"
	"github.com/stakebatch/batch-deposit-service/utils"
)

const (
	// LedgerSimulated keeps the deposit ledger in process
	LedgerSimulated = "simulated"
	// LedgerEthereum forwards the deposits to the deposit contract of an execution layer node
	LedgerEthereum = "ethereum"
)

// Config struct
type Config struct {
	Log          log.Config
	Database     db.Config
	BatchDeposit BatchDepositConfig
	Ledger       LedgerConfig
	Etherman     etherman.Config
	MessagePush  messagepush.Config
	Metrics      metrics.Config
	Server       server.Config
	NetworkConfig
}

// BatchDepositConfig holds the deployment parameters of the contract instance
type BatchDepositConfig struct {
	// Mode is "fixed-fee" or "variable-amount"
	Mode models.Mode `mapstructure:"Mode"`
	// InitialFee is the per-record fee in ETH ("0.001"). Fixed-fee mode only.
	InitialFee string `mapstructure:"InitialFee"`
	// Deployer becomes the first owner
	Deployer common.Address `mapstructure:"Deployer"`
}

// LedgerConfig selects the deposit ledger implementation
type LedgerConfig struct {
	Type string `mapstructure:"Type"`
}

// Deployment returns the contract deployment parameters for the given deposit contract
func (c BatchDepositConfig) Deployment(ledgerAddress common.Address) (batchdeposit.Deployment, error) {
	d := batchdeposit.Deployment{
		Deployer:      c.Deployer,
		LedgerAddress: ledgerAddress,
	}
	switch c.Mode {
	case models.ModeFixedFee:
		fee, err := utils.ParseEther(c.InitialFee)
		if err != nil {
			return d, fmt.Errorf("BatchDeposit.InitialFee: %w", err)
		}
		d.InitialFee = fee
	case models.ModeVariableAmount:
		if strings.TrimSpace(c.InitialFee) != "" {
			return d, errors.New("BatchDeposit.InitialFee must be empty in variable-amount mode")
		}
	default:
		return d, fmt.Errorf("BatchDeposit.Mode is not set")
	}
	return d, nil
}

// Load loads the configuration
func Load(configFilePath string, network string) (*Config, error) {
	var cfg Config
	v := viper.New()
	v.SetConfigType("toml")

	err := v.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, err
	}
	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		v.AddConfigPath(dirName)
		v.SetConfigName(fileNameWithoutExtension)
		v.SetConfigType(fileExtension)
	}
	v.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.SetEnvPrefix("BATCH_DEPOSIT")
	if configFilePath != "" {
		err = v.MergeInConfig()
		if err != nil {
			_, ok := err.(viper.ConfigFileNotFoundError)
			if ok {
				log.Infof("config file not found")
			} else {
				log.Infof("error reading config file: %v", err)
				return nil, err
			}
		}
	}

	err = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, err
	}

	if v.IsSet("NetworkConfig") && network != "" {
		return nil, errors.New("Network details are provided in the config file (the [NetworkConfig] section) and as a flag (the --network or -n). Configure it only once and try again please.")
	}
	if !v.IsSet("NetworkConfig") && network == "" {
		return nil, errors.New("Network details are not provided. Please configure the [NetworkConfig] section in your config file, or provide a --network flag.")
	}
	if !v.IsSet("NetworkConfig") && network != "" {
		if err := cfg.loadNetworkConfig(network); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

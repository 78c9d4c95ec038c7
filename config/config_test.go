package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultWithNetwork(t *testing.T) {
	cfg, err := Load("", "holesky")
	require.NoError(t, err)

	assert.Equal(t, log.Config{Level: "debug", Outputs: []string{"stdout"}}, cfg.Log)
	assert.Equal(t, "postgres", cfg.Database.Database)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, models.ModeFixedFee, cfg.BatchDeposit.Mode)
	assert.Equal(t, "0", cfg.BatchDeposit.InitialFee)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), cfg.BatchDeposit.Deployer)
	assert.Equal(t, LedgerSimulated, cfg.Ledger.Type)
	assert.Equal(t, "9090", cfg.Server.GRPCPort)
	assert.Equal(t, 5*time.Minute, cfg.Server.SignatureValidity.Duration)
	assert.Equal(t, []string{"localhost:9092"}, cfg.MessagePush.Brokers)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.Equal(t, networks["holesky"], cfg.NetworkConfig)
}

func TestLoadNetworkErrors(t *testing.T) {
	_, err := Load("", "")
	require.Error(t, err)

	_, err = Load("", "goerli")
	require.EqualError(t, err, "unsupported network: goerli")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[Database]
Database = "bolt"
Path = "/var/lib/batchdeposit/state.db"

[BatchDeposit]
Mode = "variable-amount"
InitialFee = ""

[Ledger]
Type = "ethereum"

[NetworkConfig]
DepositContractAddr = "0x00000000219ab540356cBB839Cbe05303d7705Fa"
L1ChainID = 560048
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Database.Database)
	assert.Equal(t, "/var/lib/batchdeposit/state.db", cfg.Database.Path)
	assert.Equal(t, models.ModeVariableAmount, cfg.BatchDeposit.Mode)
	assert.Equal(t, LedgerEthereum, cfg.Ledger.Type)
	assert.Equal(t, networks["hoodi"], cfg.NetworkConfig)
	// untouched sections keep their defaults
	assert.Equal(t, "8080", cfg.Server.HTTPPort)

	_, err = Load(path, "mainnet")
	require.Error(t, err)
}

func TestDeployment(t *testing.T) {
	ledger := beaconDepositContract
	deployer := common.HexToAddress("0x1111111111111111111111111111111111111111")

	d, err := BatchDepositConfig{Mode: models.ModeFixedFee, InitialFee: "0.001", Deployer: deployer}.Deployment(ledger)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", d.InitialFee.String())
	assert.Equal(t, deployer, d.Deployer)
	assert.Equal(t, ledger, d.LedgerAddress)

	d, err = BatchDepositConfig{Mode: models.ModeVariableAmount, Deployer: deployer}.Deployment(ledger)
	require.NoError(t, err)
	assert.Nil(t, d.InitialFee)

	_, err = BatchDepositConfig{Mode: models.ModeVariableAmount, InitialFee: "1"}.Deployment(ledger)
	require.Error(t, err)
	_, err = BatchDepositConfig{Mode: models.ModeFixedFee, InitialFee: "-1"}.Deployment(ledger)
	require.Error(t, err)
	_, err = BatchDepositConfig{}.Deployment(ledger)
	require.Error(t, err)
}

func TestNetworks(t *testing.T) {
	assert.Equal(t, []string{"holesky", "hoodi", "local", "mainnet"}, Networks())

	preset, err := Network("hoodi")
	require.NoError(t, err)
	assert.Equal(t, uint64(560048), preset.L1ChainID)
	assert.Equal(t, "0x00000000219ab540356cBB839Cbe05303d7705Fa", preset.DepositContractAddr.Hex())

	_, err = Network("sepolia")
	require.EqualError(t, err, "unsupported network: sepolia")
}

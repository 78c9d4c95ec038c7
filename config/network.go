package config

import (
	"fmt"
	"sort"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig is the configuration struct for the different environments
type NetworkConfig struct {
	// DepositContractAddr is the deposit ledger every record is forwarded to
	DepositContractAddr common.Address
	L1ChainID           uint64
}

var (
	beaconDepositContract  = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")
	testnetDepositContract = common.HexToAddress("0x4242424242424242424242424242424242424242")
)

//nolint:gomnd
var networks = map[string]NetworkConfig{
	"mainnet": {DepositContractAddr: beaconDepositContract, L1ChainID: 1},
	"hoodi":   {DepositContractAddr: beaconDepositContract, L1ChainID: 560048},
	"holesky": {DepositContractAddr: testnetDepositContract, L1ChainID: 17000},
	"local":   {DepositContractAddr: testnetDepositContract, L1ChainID: 1337},
}

// Networks returns the names of the network presets, sorted
func Networks() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Network returns the preset of a network
func Network(name string) (NetworkConfig, error) {
	preset, ok := networks[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", name)
	}
	return preset, nil
}

func (cfg *Config) loadNetworkConfig(network string) error {
	preset, err := Network(network)
	if err != nil {
		return err
	}
	log.Debugf("%s network selected", network)
	cfg.NetworkConfig = preset
	return nil
}

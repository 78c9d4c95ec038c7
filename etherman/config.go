package etherman

// Config represents the configuration of the etherman
type Config struct {
	// L1URL is the execution layer JSON-RPC endpoint
	L1URL string `mapstructure:"L1URL"`
	// L1ChainID is checked against the node when not zero
	L1ChainID uint64 `mapstructure:"L1ChainID"`

	// PrivateKeyPath is the keystore file of the account funding the deposits and paying the withdrawals
	PrivateKeyPath     string `mapstructure:"PrivateKeyPath"`
	PrivateKeyPassword string `mapstructure:"PrivateKeyPassword"`

	// GasLimit is used for every transaction when not zero, otherwise the gas is estimated
	GasLimit uint64 `mapstructure:"GasLimit"`
}

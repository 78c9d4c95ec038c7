package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Level = "debug"
Outputs = ["stdout"]

[Database]
Database = "postgres"
User = "test_user"
Password = "test_password"
Name = "test_db"
Host = "batch-deposit-db"
Port = "5432"
MaxConns = 20
Path = "./batchdeposit.db"

[BatchDeposit]
Mode = "fixed-fee"
InitialFee = "0"
Deployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

[Ledger]
Type = "simulated"

[Etherman]
L1URL = "http://localhost:8545"
L1ChainID = 0
PrivateKeyPath = "./test/test.keystore"
PrivateKeyPassword = "testonly"
GasLimit = 0

[MessagePush]
Enabled = false
UseFakeProducer = true
Brokers = ["localhost:9092"]
Topic = "batch-deposit-events"
PushKey = "batch-deposit"

[Metrics]
Enabled = false
Port = "9091"
Endpoint = "/metrics"

[Server]
GRPCPort = "9090"
HTTPPort = "8080"
DefaultPageLimit = 25
MaxPageLimit = 100
SignatureValidity = "5m"
ReadTimeout = "5s"
`

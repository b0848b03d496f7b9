package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Environment = "development" # "production" or "development"
Level = "info"
Outputs = ["stderr"]

[Server]
Host = "0.0.0.0"
Port = 8545
ReadTimeout = "60s"
WriteTimeout = "60s"
MaxRequestsPerIPAndSecond = 500
EnableHttpLog = true
BatchRequestsEnabled = false
BatchRequestsLimit = 20
BatchRequestsConcurrency = 4
WebSocketPath = "/ws"

[DB]
Driver = "memory" # "memory", "postgres" or "sqlite"
User = "tx_engine_user"
Password = "tx_engine_password"
Name = "tx_engine_db"
Host = "zkevm-tx-engine-db"
Port = "5432"
EnableLog = false
MaxConns = 200
SQLitePath = "tx_engine.db"
	[DB.Cache]
	Addr = ""
	TTL = "30s"

[Signer]
PrivateKeys = []

[Executor]
GasBumpFactor = 1.2
	[Executor.SendPolicy]
	Retries = 3
	MinWait = "500ms"
	MaxWait = "2s"
	[Executor.PrivateRelayPolicy]
	Retries = 10
	MinWait = "1s"
	MaxWait = "3s"

[Features]
Enabled = []
RedisAddr = ""
RedisKeyPrefix = "txengine:feature:"

[Watcher]
ResubscribeMinWait = "1s"
ResubscribeMaxWait = "5s"
StreamBuffer = 64
	[Watcher.Kafka]
	Brokers = []
	TopicPrefix = "txengine-blocks"

[Monitor]
Workers = 5
QueueSize = 25
RetryWaitInterval = "3s"
InitialWaitInterval = "3s"
TxLifeTimeMax = "30m"

[Sender]
Enabled = true
ResendTxsCheckInterval = "15s"
ResendInterval = "1m"
Workers = 5
QueueSize = 25
	[Sender.SendPolicy]
	Retries = 2
	MinWait = "500ms"
	MaxWait = "2s"

[Metrics]
Host = "0.0.0.0"
Port = 9091
Enabled = false
ProfilingHost = "0.0.0.0"
ProfilingPort = 6060
ProfilingEnabled = false

[Telemetry]
Enabled = false
ServiceName = "zkevm-tx-engine"
Endpoint = "localhost:4318"
`

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	txengine "github.com/0xPolygonHermez/zkevm-tx-engine"
	"github.com/0xPolygonHermez/zkevm-tx-engine/config"
	"github.com/0xPolygonHermez/zkevm-tx-engine/db"
	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/features"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/metrics"
	"github.com/0xPolygonHermez/zkevm-tx-engine/monitor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/provider"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/sender"
	server "github.com/0xPolygonHermez/zkevm-tx-engine/server"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/telemetry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/watcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/invopop/jsonschema"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	appName         = "zkevm-tx-engine"
	shutdownTimeout = 30 * time.Second
)

var (
	configFileFlag = cli.StringFlag{
		Name:     config.FlagCfg,
		Aliases:  []string{"c"},
		Usage:    "Configuration `FILE`",
		Required: false,
	}
	envFileFlag = cli.StringFlag{
		Name:     config.FlagEnvFile,
		Usage:    "Environment `FILE` loaded before the configuration. Defaults to .env when present",
		Required: false,
	}
	migrationsFlag = cli.BoolFlag{
		Name:     config.FlagNoMigrations,
		Aliases:  []string{"n"},
		Usage:    "Disable run migrations in the tx engine database",
		Required: false,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "zkEVM Tx Engine component"
	app.Version = txengine.Version
	flags := []cli.Flag{&configFileFlag, &envFileFlag}
	app.Commands = []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Application version and build",
			Action:  versionCmd,
		},
		{
			Name:    "run",
			Aliases: []string{},
			Usage:   "Run zkEVM Tx Engine",
			Action:  start,
			Flags:   append(flags, &migrationsFlag),
		},
		{
			Name:    "schema",
			Aliases: []string{},
			Usage:   "Print the JSON schema of the configuration",
			Action:  schemaCmd,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		println()
		println("ERROR:", err.Error())
		os.Exit(1)
	}
}

// chainClients holds the node clients of the configured chains, viewed through the interface
// of every component
type chainClients struct {
	all      []*provider.Client
	signer   map[uint64]signer.ChainClient
	receipts map[uint64]monitor.ReceiptClient
	raw      map[uint64]sender.RawSender
	wrapped  map[uint64]common.Address
}

func dialChains(ctx context.Context, chains []provider.ChainConfig) (*chainClients, error) {
	clients := &chainClients{
		signer:   make(map[uint64]signer.ChainClient, len(chains)),
		receipts: make(map[uint64]monitor.ReceiptClient, len(chains)),
		raw:      make(map[uint64]sender.RawSender, len(chains)),
		wrapped:  make(map[uint64]common.Address),
	}
	for _, chain := range chains {
		client, err := provider.Dial(ctx, chain)
		if err != nil {
			clients.close()
			return nil, fmt.Errorf("error connecting to chain %d: %w", chain.ChainID, err)
		}
		log.Infof("connected to chain %d (%s)", chain.ChainID, client.Name())

		clients.all = append(clients.all, client)
		clients.signer[chain.ChainID] = client
		clients.receipts[chain.ChainID] = client
		clients.raw[chain.ChainID] = client
		if chain.WrappedNativeToken != "" {
			if !common.IsHexAddress(chain.WrappedNativeToken) {
				clients.close()
				return nil, fmt.Errorf("invalid wrapped native token %q for chain %d", chain.WrappedNativeToken, chain.ChainID)
			}
			clients.wrapped[chain.ChainID] = common.HexToAddress(chain.WrappedNativeToken)
		}
	}
	return clients, nil
}

func (c *chainClients) close() {
	for _, client := range c.all {
		client.Close()
	}
}

func start(cliCtx *cli.Context) error {
	// Load config file
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}

	// Setup logger
	log.Init(c.Log)
	if c.Log.Environment == log.EnvironmentDevelopment {
		txengine.PrintVersion(os.Stdout)
		log.Info("starting application...")
	} else if c.Log.Environment == log.EnvironmentProduction {
		logVersion()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, c.Telemetry)
	if err != nil {
		log.Errorf("error initializing tracing, traces are disabled: %v", err)
	}
	metrics.Register()

	if c.DB.Driver == db.DriverPostgres {
		// Run migrations if the 'no-migrations' flag is not set
		if !cliCtx.Bool(config.FlagNoMigrations) {
			log.Infof("running database migrations, host: %s:%s, db: %s, user: %s", c.DB.Host, c.DB.Port, c.DB.Name, c.DB.User)
			runTxEngineMigrations(c.DB)
		}
		checkTxEngineMigrations(c.DB)
	}

	storage, err := db.NewStorage(c.DB)
	if err != nil {
		log.Fatalf("error when creating the transaction storage, error: %v", err)
	}
	repo := repository.NewRepository(storage)

	clients, err := dialChains(ctx, c.Chains)
	if err != nil {
		log.Fatal(err)
	}

	keys, err := signer.NewLocalKeyStore(c.Signer)
	if err != nil {
		log.Fatalf("error loading the signer keys, error: %v", err)
	}
	signers := signer.NewRegistry(keys, clients.signer)
	log.Infof("%d signer accounts loaded", len(keys.Accounts()))

	flags, err := features.NewProvider(c.Features)
	if err != nil {
		log.Fatalf("error creating the feature flags provider, error: %v", err)
	}

	wrapped := executor.DefaultWrappedNativeTokens().WithOverrides(clients.wrapped)
	exec := executor.NewExecutor(c.Executor, repo, signers, flags, wrapped)

	stream := watcher.NewStream()
	blockWatcher := watcher.NewWatcher(c.Watcher, stream)

	var sink *watcher.KafkaSink
	if len(c.Watcher.Kafka.Brokers) > 0 {
		sink, err = watcher.NewKafkaSink(c.Watcher.Kafka)
		if err != nil {
			log.Fatalf("error creating the kafka block sink, error: %v", err)
		}
		updates, unsubscribe := stream.Subscribe(c.Watcher.StreamBuffer)
		go func() {
			defer unsubscribe()
			sink.Run(ctx, updates)
		}()
	}

	// the monitor subscribes to the stream before the first block is published
	txMonitor := monitor.NewMonitor(c.Monitor, repo, stream, clients.receipts, signers)
	if err := txMonitor.Start(ctx); err != nil {
		log.Fatalf("error starting the monitor, error: %v", err)
	}

	watches := make([]*watcher.ChainWatch, 0, len(clients.all))
	for _, client := range clients.all {
		watches = append(watches, blockWatcher.Watch(ctx, client.ChainID(), client))
	}

	if c.Sender.Enabled {
		txSender := sender.NewSender(c.Sender, repo, clients.raw)
		txSender.Start(ctx)
	}

	srv := server.NewServer(c.Server, exec, repo)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)

	if c.Metrics.Enabled {
		go startMetricsHttpServer(c.Metrics)
	}

	if c.Metrics.ProfilingEnabled {
		go startProfilingHttpServer(c.Metrics)
	}

	waitSignal(gCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Errorf("error stopping the HTTP server: %v", err)
	}
	for _, watch := range watches {
		watch.Stop()
	}
	cancel()

	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Errorf("error closing the kafka block sink: %v", err)
		}
	}
	clients.close()
	closeResource("feature flags provider", flags)
	closeResource("transaction storage", storage)
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Errorf("error flushing traces: %v", err)
	}

	return g.Wait()
}

// closeResource closes r when it holds a resource
func closeResource(name string, r interface{}) {
	switch closer := r.(type) {
	case interface{ Close() error }:
		if err := closer.Close(); err != nil {
			log.Errorf("error closing the %s: %v", name, err)
		}
	case interface{ Close() }:
		closer.Close()
	}
}

func versionCmd(*cli.Context) error {
	txengine.PrintVersion(os.Stdout)
	return nil
}

func schemaCmd(*cli.Context) error {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(&config.Config{})
	schema.Title = "zkEVM Tx Engine config file"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTxEngineMigrations(c db.Config) {
	log.Infof("running database migrations for %v", db.TxEngineMigrationName)
	err := db.RunMigrationsUp(c, db.TxEngineMigrationName)
	if err != nil {
		log.Fatal(err)
	}
}

func checkTxEngineMigrations(c db.Config) {
	err := db.CheckMigrations(c, db.TxEngineMigrationName)
	if err != nil {
		log.Fatal(err)
	}
}

// waitSignal blocks until the process is interrupted or ctx is done
func waitSignal(ctx context.Context) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.Infof("%s received, terminating application gracefully...", sig)
	case <-ctx.Done():
		log.Info("terminating application after a component failure...")
	}
}

func logVersion() {
	log.Infow(
		// node version is already logged by default
		"Git revision", txengine.GitRev,
		"Git branch", txengine.GitBranch,
		"Go version", runtime.Version(),
		"Built", txengine.BuildDate,
		"OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	)
}

func startProfilingHttpServer(c metrics.Config) {
	const two = 2
	mux := http.NewServeMux()
	address := fmt.Sprintf("%s:%d", c.ProfilingHost, c.ProfilingPort)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		log.Errorf("failed to create tcp listener for profiling: %v", err)
		return
	}
	mux.HandleFunc(metrics.ProfilingIndexEndpoint, pprof.Index)
	mux.HandleFunc(metrics.ProfileEndpoint, pprof.Profile)
	mux.HandleFunc(metrics.ProfilingCmdEndpoint, pprof.Cmdline)
	mux.HandleFunc(metrics.ProfilingSymbolEndpoint, pprof.Symbol)
	mux.HandleFunc(metrics.ProfilingTraceEndpoint, pprof.Trace)
	profilingServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: two * time.Minute,
		ReadTimeout:       two * time.Minute,
	}
	log.Infof("profiling server listening on port %d", c.ProfilingPort)
	if err := profilingServer.Serve(lis); err != nil {
		if err == http.ErrServerClosed {
			log.Warnf("http server for profiling stopped")
			return
		}
		log.Errorf("closed http connection for profiling server: %v", err)
		return
	}
}

func startMetricsHttpServer(c metrics.Config) {
	const ten = 10
	mux := http.NewServeMux()
	address := fmt.Sprintf("%s:%d", c.Host, c.Port)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		log.Errorf("failed to create tcp listener for metrics: %v", err)
		return
	}
	mux.Handle(metrics.Endpoint, promhttp.Handler())

	metricsServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: ten * time.Second,
		ReadTimeout:       ten * time.Second,
	}
	log.Infof("metrics server listening on port %d", c.Port)
	if err := metricsServer.Serve(lis); err != nil {
		if err == http.ErrServerClosed {
			log.Warnf("http server for metrics stopped")
			return
		}
		log.Errorf("closed http connection for metrics server: %v", err)
		return
	}
}

// Command indexer runs the cross-chain event indexer: it loads
// configuration, opens the hybrid storage engine, dials every configured
// chain adapter, and drives the ingestion, reorg, finality, and
// correlation goroutines until a shutdown signal arrives, following the
// teacher's flag-parse -> config.Load -> component-wiring -> HTTP server
// -> signal.Notify shutdown shape in main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"golang.org/x/sync/errgroup"

	"github.com/certen-labs/chainindexer/internal/chainadapter"
	"github.com/certen-labs/chainindexer/internal/chainadapter/cosmos"
	"github.com/certen-labs/chainindexer/internal/chainadapter/evm"
	"github.com/certen-labs/chainindexer/internal/config"
	"github.com/certen-labs/chainindexer/internal/correlator"
	"github.com/certen-labs/chainindexer/internal/faststore"
	"github.com/certen-labs/chainindexer/internal/finality"
	"github.com/certen-labs/chainindexer/internal/metrics"
	"github.com/certen-labs/chainindexer/internal/pipeline"
	"github.com/certen-labs/chainindexer/internal/reorg"
	"github.com/certen-labs/chainindexer/internal/richstore"
	"github.com/certen-labs/chainindexer/internal/server"
	"github.com/certen-labs/chainindexer/internal/storage"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "", "path to YAML configuration file (optional; env vars always override)")
	flag.Parse()

	log.Println("starting chainindexer")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	fast, err := faststore.Open("chainindexer", cfg.FastStorePath, cfg.FastStoreBackend)
	if err != nil {
		log.Fatalf("opening fast store: %v", err)
	}
	defer fast.Close()

	walDB, err := dbm.NewDB("chainindexer-wal", dbm.BackendType(cfg.FastStoreBackend), cfg.FastStorePath)
	if err != nil {
		log.Fatalf("opening WAL store: %v", err)
	}
	defer walDB.Close()

	richClient, err := richstore.Open(richstore.Config{
		URL:      cfg.RichStoreURL,
		MaxConns: cfg.RichStoreMaxConns,
	}, richstore.WithLogger(log.New(log.Writer(), "[RichStore] ", log.LstdFlags)))
	if err != nil {
		log.Fatalf("opening rich store: %v", err)
	}
	defer richClient.Close()

	if cfg.RichStoreMigrate {
		if err := richClient.MigrateUp(context.Background()); err != nil {
			log.Fatalf("running migrations: %v", err)
		}
	}

	engine := storage.NewEngine(fast, richClient, walDB)

	chainNames := make([]string, 0, len(cfg.Chains))
	for name := range cfg.Chains {
		chainNames = append(chainNames, name)
	}
	if err := engine.RecoverPending(context.Background(), chainNames); err != nil {
		log.Fatalf("recovering pending commits: %v", err)
	}

	adapters := make(map[string]chainadapter.Adapter, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		adapter, err := dialAdapter(cc)
		if err != nil {
			log.Fatalf("dialing adapter for chain %s: %v", name, err)
		}
		adapters[name] = adapter
	}

	reg := metrics.New()

	corr := correlator.New(richstore.NewRepository(richClient), correlator.Config{
		MessageTimeout:   cfg.MessageTimeout,
		OriginationGrace: cfg.OriginationGrace,
		RingBufferSize:   cfg.RingBufferSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	pipelines := make(map[string]*pipeline.Pipeline, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		name, cc := name, cc
		adapter := adapters[name]

		reorgHandler := reorg.New(engine, cfg.DeepReorgDepth)
		p := pipeline.New(name, adapter, engine, reorgHandler, pipeline.Config{
			BatchSize:    cc.BatchSize,
			PollInterval: cc.PollingInterval,
			MaxRetries:   cfg.MaxRetries,
		})
		pipelines[name] = p
		finalityTracker := finality.New(name, adapter, engine, finality.Config{})

		group.Go(func() error {
			p.Start(gctx)
			<-gctx.Done()
			p.Stop()
			return nil
		})
		group.Go(func() error {
			return finalityTracker.Start(gctx)
		})
	}

	pipelineStatuses := make(map[string]server.PipelineStatus, len(pipelines))
	for name, p := range pipelines {
		pipelineStatuses[name] = p
	}

	correlatorSub := engine.Feed().Subscribe(chainadapter.EventFilter{})
	group.Go(func() error {
		corr.Run(gctx, correlatorSub)
		return nil
	})
	go func() {
		<-gctx.Done()
		correlatorSub.Close()
	}()
	group.Go(func() error {
		corr.RunTimeoutSweeper(gctx)
		return nil
	})

	var httpSrv *server.Server
	if cfg.EnableHTTP {
		chainHandlers := server.NewChainHandlers(engine, pipelineStatuses)
		messageHandlers := server.NewMessageHandlers(richstore.NewRepository(richClient))
		subscribeHandlers := server.NewSubscribeHandlers(engine.Feed())

		var metricsHandler http.Handler
		if cfg.MetricsEnable {
			metricsHandler = reg.Handler()
		}

		httpSrv = server.New(fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort), chainHandlers, messageHandlers, subscribeHandlers, metricsHandler)
		httpSrv.Start()
	}

	log.Printf("chainindexer ready, tracking %d chain(s)", len(cfg.Chains))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	cancel()

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
	}

	if err := group.Wait(); err != nil {
		log.Printf("goroutine group error: %v", err)
	}

	log.Println("chainindexer stopped")
}

func dialAdapter(cc config.ChainConfig) (chainadapter.Adapter, error) {
	switch cc.Family {
	case config.FamilyEVM:
		return evm.Dial(evm.Config{
			ChainName:      cc.Name,
			RPCURL:         cc.RPCURL,
			FinalityBlocks: cc.FinalityBlocks,
		})
	case config.FamilyCosmos:
		return cosmos.Dial(cosmos.Config{
			ChainName: cc.Name,
			RPCURL:    cc.RPCURL,
		})
	default:
		return nil, fmt.Errorf("unknown chain family %q for chain %s", cc.Family, cc.Name)
	}
}

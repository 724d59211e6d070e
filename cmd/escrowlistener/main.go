package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fairraffle/go-rafflebridge/buildinfo"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/enrich"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	efimpl "github.com/fairraffle/go-rafflebridge/pkg/eventfeed/impl"
	epimpl "github.com/fairraffle/go-rafflebridge/pkg/eventprocessor/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/logging"
	"github.com/fairraffle/go-rafflebridge/pkg/metrics"
	nonceimpl "github.com/fairraffle/go-rafflebridge/pkg/nonce/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	storeimpl "github.com/fairraffle/go-rafflebridge/pkg/store/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
)

func main() {
	cfg := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, cfg.Log.Debug, cfg.Log.Human)

	if err := metrics.SetupInstrumentation(":"+cfg.Metrics.Port, "escrowlistener"); err != nil {
		log.Fatal().Err(err).Str("port", cfg.Metrics.Port).Msg("could not setup instrumentation")
	}

	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to open mirror database")
	}
	mirror := storeimpl.New(db)

	l1Conn, err := ethclient.Dial(cfg.L1.EthEndpoint)
	if err != nil {
		log.Fatal().Err(err).Str("ethEndpoint", cfg.L1.EthEndpoint).Msg("failed to connect to L1 endpoint")
	}
	defer l1Conn.Close()
	l2Conn, err := ethclient.Dial(cfg.L2.EthEndpoint)
	if err != nil {
		log.Fatal().Err(err).Str("ethEndpoint", cfg.L2.EthEndpoint).Msg("failed to connect to L2 endpoint")
	}
	defer l2Conn.Close()

	l1ChainID := bridge.ChainID(cfg.L1.ChainID)
	l2ChainID := bridge.ChainID(cfg.L2.ChainID)

	relayerWallet, err := wallet.NewWallet(cfg.Signer.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create wallet from private key string")
	}

	checkInterval, err := time.ParseDuration(cfg.Tracker.CheckInterval)
	if err != nil {
		log.Fatal().Err(err).Msgf("check interval has invalid format: %s", cfg.Tracker.CheckInterval)
	}
	stuckInterval, err := time.ParseDuration(cfg.Tracker.StuckInterval)
	if err != nil {
		log.Fatal().Err(err).Msgf("stuck interval has invalid format: %s", cfg.Tracker.StuckInterval)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	tracker, err := nonceimpl.NewLocalTracker(
		ctx,
		relayerWallet,
		nonceimpl.NewNonceStore(db),
		l2ChainID,
		l2Conn,
		checkInterval,
		cfg.Tracker.MinBlockDepth,
		stuckInterval,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L2 nonce tracker")
	}
	defer tracker.Close()

	l2Registry, err := ethereum.NewClient(
		l2Conn,
		l2ChainID,
		common.HexToAddress(cfg.L2.RafflesContract),
		relayerWallet,
		tracker,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L2 registry client")
	}

	enrichCache := enrich.NewCache(l2Conn, cfg.L2.NativeCurrencyName, cfg.L2.NativeCurrencySymbol)

	escrowABI, err := ethereum.EscrowMetaData.GetAbi()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse escrow abi")
	}
	escrowAddr := common.HexToAddress(cfg.L1.EscrowContract)
	feed, err := efimpl.New(mirror, l1ChainID, l1Conn, escrowAddr, escrowABI, ethereum.EscrowEvents, feedOptions(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create escrow event feed")
	}

	eventTypes := make([]eventfeed.EventType, 0, len(ethereum.EscrowEvents))
	for et := range ethereum.EscrowEvents {
		eventTypes = append(eventTypes, et)
	}
	processor, err := epimpl.New(mirror, feed, nil, l2Registry, enrichCache, l1ChainID, escrowAddr, eventTypes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event processor")
	}
	if err := processor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start event processor")
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthHandler)
	router.HandleFunc("/health", healthHandler)
	go func() {
		if err := http.ListenAndServe(":"+cfg.HTTP.Port, router); err != nil {
			log.Error().Err(err).Str("port", cfg.HTTP.Port).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down...")
	processor.Stop()
	if err := mirror.Close(); err != nil {
		log.Error().Err(err).Msg("closing mirror store")
	}
}

func feedOptions(cfg *config) []eventfeed.Option {
	chainAPIBackoff, err := time.ParseDuration(cfg.Feed.ChainAPIBackoff)
	if err != nil {
		log.Fatal().Err(err).Msgf("chain api backoff has invalid format: %s", cfg.Feed.ChainAPIBackoff)
	}
	newBlockTimeout, err := time.ParseDuration(cfg.Feed.NewBlockTimeout)
	if err != nil {
		log.Fatal().Err(err).Msgf("new block timeout has invalid format: %s", cfg.Feed.NewBlockTimeout)
	}
	return []eventfeed.Option{
		eventfeed.WithMinBlockDepth(cfg.Feed.MinBlockDepth),
		eventfeed.WithChainAPIBackoff(chainAPIBackoff),
		eventfeed.WithNewBlockTimeout(newBlockTimeout),
		eventfeed.WithEventPersistence(cfg.Feed.PersistEvents),
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package main

import (
	"context"
	"math/big"
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
	"github.com/fairraffle/go-rafflebridge/pkg/gas"
	"github.com/fairraffle/go-rafflebridge/pkg/logging"
	"github.com/fairraffle/go-rafflebridge/pkg/metrics"
	nonceimpl "github.com/fairraffle/go-rafflebridge/pkg/nonce/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	"github.com/fairraffle/go-rafflebridge/pkg/relay"
	storeimpl "github.com/fairraffle/go-rafflebridge/pkg/store/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
)

func main() {
	cfg := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, cfg.Log.Debug, cfg.Log.Human)

	if err := metrics.SetupInstrumentation(":"+cfg.Metrics.Port, "relayer"); err != nil {
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
	callbackInterval, err := time.ParseDuration(cfg.Relay.CallbackInterval)
	if err != nil {
		log.Fatal().Err(err).Msgf("callback interval has invalid format: %s", cfg.Relay.CallbackInterval)
	}
	deadlineInterval, err := time.ParseDuration(cfg.Relay.DeadlineInterval)
	if err != nil {
		log.Fatal().Err(err).Msgf("deadline interval has invalid format: %s", cfg.Relay.DeadlineInterval)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	nonceStore := nonceimpl.NewNonceStore(db)

	l1Tracker, err := nonceimpl.NewLocalTracker(
		ctx, relayerWallet, nonceStore, l1ChainID, l1Conn, checkInterval, cfg.Tracker.MinBlockDepth, stuckInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L1 nonce tracker")
	}
	defer l1Tracker.Close()
	l2Tracker, err := nonceimpl.NewLocalTracker(
		ctx, relayerWallet, nonceStore, l2ChainID, l2Conn, checkInterval, cfg.Tracker.MinBlockDepth, stuckInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L2 nonce tracker")
	}
	defer l2Tracker.Close()

	escrow, err := ethereum.NewEscrowClient(
		l1Conn, l1ChainID, common.HexToAddress(cfg.L1.EscrowContract), relayerWallet, l1Tracker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create escrow client")
	}
	raffles, err := ethereum.NewClient(
		l2Conn, l2ChainID, common.HexToAddress(cfg.L2.RafflesContract), relayerWallet, l2Tracker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create raffles client")
	}

	l1Gate, err := gas.NewFeeGate(l1Conn, l1ChainID, mustParseWei(cfg.L1.MaxGasPrice))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L1 fee gate")
	}
	l2Gate, err := gas.NewFeeGate(l2Conn, l2ChainID, mustParseWei(cfg.L2.MaxGasPrice))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create L2 fee gate")
	}

	callbackQueue := relay.NewCallbackQueue(mirror, escrow, l1Gate, l1Conn, callbackInterval)
	callbackQueue.Start()
	deadlineScanner := relay.NewDeadlineScanner(mirror, raffles, l2Gate, l2Conn, deadlineInterval)
	deadlineScanner.Start()

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
	callbackQueue.Stop()
	deadlineScanner.Stop()
	if err := mirror.Close(); err != nil {
		log.Error().Err(err).Msg("closing mirror store")
	}
}

func mustParseWei(v string) *big.Int {
	wei, ok := new(big.Int).SetString(v, 10)
	if !ok {
		log.Fatal().Msgf("max gas price has invalid format: %s", v)
	}
	return wei
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

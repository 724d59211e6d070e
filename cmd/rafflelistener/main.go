package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fairraffle/go-rafflebridge/buildinfo"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/internal/chains"
	"github.com/fairraffle/go-rafflebridge/pkg/backup"
	"github.com/fairraffle/go-rafflebridge/pkg/backup/restorer"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/enrich"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	efimpl "github.com/fairraffle/go-rafflebridge/pkg/eventfeed/impl"
	epimpl "github.com/fairraffle/go-rafflebridge/pkg/eventprocessor/impl"
	"github.com/fairraffle/go-rafflebridge/pkg/logging"
	"github.com/fairraffle/go-rafflebridge/pkg/metrics"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	storeimpl "github.com/fairraffle/go-rafflebridge/pkg/store/impl"
)

func main() {
	cfg := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, cfg.Log.Debug, cfg.Log.Human)

	if err := metrics.SetupInstrumentation(":"+cfg.Metrics.Port, "rafflelistener"); err != nil {
		log.Fatal().Err(err).Str("port", cfg.Metrics.Port).Msg("could not setup instrumentation")
	}

	if cfg.BackupRestoration.Enabled {
		if _, err := os.Stat(cfg.DB.Path); os.IsNotExist(err) {
			log.Info().Str("url", cfg.BackupRestoration.URL).Msg("restoring mirror database from backup")
			br := restorer.NewBackupRestorer(cfg.BackupRestoration.URL, cfg.DB.Path)
			if err := br.Restore(); err != nil {
				log.Fatal().Err(err).Msg("backup restoration failed")
			}
		}
	}

	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to open mirror database")
	}
	mirror := storeimpl.New(db)

	var backupScheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		frequency, err := time.ParseDuration(cfg.Backup.Frequency)
		if err != nil {
			log.Fatal().Err(err).Msgf("backup frequency has invalid format: %s", cfg.Backup.Frequency)
		}
		backuper, err := backup.NewBackuper(cfg.DB.Path, cfg.Backup.Dir,
			backup.WithVacuum(cfg.Backup.Vacuum),
			backup.WithCompression(cfg.Backup.Compression),
			backup.WithPruning(cfg.Backup.Pruning.Enabled, cfg.Backup.Pruning.KeepFiles),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create backuper")
		}
		backupScheduler = backup.NewScheduler(frequency, backuper, false)
		go backupScheduler.Run()
	}

	conn, err := ethclient.Dial(cfg.L2.EthEndpoint)
	if err != nil {
		log.Fatal().Err(err).Str("ethEndpoint", cfg.L2.EthEndpoint).Msg("failed to connect to ethereum endpoint")
	}
	defer conn.Close()

	chainID := bridge.ChainID(cfg.L2.ChainID)
	reader, err := ethereum.NewReader(conn, common.HexToAddress(cfg.L2.RafflesContract))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create raffles reader")
	}
	enrichCache := enrich.NewCache(conn, cfg.L2.NativeCurrencyName, cfg.L2.NativeCurrencySymbol)

	feedOpts := feedOptions(cfg)

	rafflesABI, err := ethereum.RafflesMetaData.GetAbi()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse raffles abi")
	}
	marketABI, err := ethereum.MarketMetaData.GetAbi()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse market abi")
	}
	lotteryABI, err := ethereum.LotteryMetaData.GetAbi()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse lottery abi")
	}

	type listenTarget struct {
		contract common.Address
		abi      *abi.ABI
		events   eventfeed.EventSet
	}
	targets := []listenTarget{
		{common.HexToAddress(cfg.L2.RafflesContract), rafflesABI, ethereum.RafflesEvents},
		{common.HexToAddress(cfg.L2.MarketContract), marketABI, ethereum.MarketEvents},
	}
	// The lottery listeners are optional; a deployment without lottery
	// contracts leaves the addresses empty.
	for _, lotteryContract := range []string{cfg.L2.WeeklyLotteryContract, cfg.L2.MonthlyLotteryContract} {
		if lotteryContract != "" {
			targets = append(targets,
				listenTarget{common.HexToAddress(lotteryContract), lotteryABI, ethereum.LotteryEvents})
		}
	}

	stacks := make([]chains.ListenerStack, 0, len(targets))
	for _, target := range targets {
		feed, err := efimpl.New(mirror, chainID, conn, target.contract, target.abi, target.events, feedOpts...)
		if err != nil {
			log.Fatal().Err(err).Str("contract", target.contract.Hex()).Msg("failed to create event feed")
		}

		eventTypes := make([]eventfeed.EventType, 0, len(target.events))
		for et := range target.events {
			eventTypes = append(eventTypes, et)
		}
		processor, err := epimpl.New(mirror, feed, reader, nil, enrichCache, chainID, target.contract, eventTypes)
		if err != nil {
			log.Fatal().Err(err).Str("contract", target.contract.Hex()).Msg("failed to create event processor")
		}
		if err := processor.Start(); err != nil {
			log.Fatal().Err(err).Str("contract", target.contract.Hex()).Msg("failed to start event processor")
		}
		stacks = append(stacks, chains.ListenerStack{
			EventProcessor: processor,
			Close: func(ctx context.Context) error {
				processor.Stop()
				return nil
			},
		})
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthHandler)
	router.HandleFunc("/health", healthHandler)
	go func() {
		if err := http.ListenAndServe(":"+cfg.HTTP.Port, router); err != nil {
			log.Error().Err(err).Str("port", cfg.HTTP.Port).Msg("http server failed")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()
	<-ctx.Done()

	log.Info().Msg("shutting down...")
	if backupScheduler != nil {
		backupScheduler.Shutdown()
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer closeCancel()
	for _, stack := range stacks {
		if err := stack.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("closing listener stack")
		}
	}
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

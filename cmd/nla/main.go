package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/neurallock/nla/internal/agent"
	"github.com/neurallock/nla/internal/chain"
	"github.com/neurallock/nla/internal/config"
	"github.com/neurallock/nla/internal/executor"
	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/observer"
	"github.com/neurallock/nla/internal/policy"
	"github.com/neurallock/nla/internal/state"
	"github.com/neurallock/nla/internal/web"
)

// main is the entry point for the locker agent.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Neural Locker Agent starting...")

	// Initialize database connection (cycle reports are optional)
	persistReports := false
	if os.Getenv("DB_HOST") != "" {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		persistReports = true
	} else {
		log.Warn().Msg("DB_HOST not set, cycle reports will not be persisted")
	}

	// --- 2. Chain Access ---
	signer, err := chain.NewLocalSigner(config.SignerKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load signer key")
	}
	log.Info().Str("address", signer.Address().Hex()).Msg("Signer loaded")

	client, err := chain.NewLiveClient(chain.LiveConfig{
		RPCURL:         config.RPCURL,
		Locker:         config.LockerAddress,
		LPToken:        config.LPTokenAddress,
		MaxGasLimit:    config.MaxGasLimit,
		MaxPriorityFee: new(big.Int).SetUint64(config.MaxPriorityFeeWei),
		Signer:         signer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RPC endpoint")
	}
	defer client.Close()
	log.Info().Str("endpoint", config.RPCURL).Msg("Chain client connected")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 3. Component Wiring ---
	obs, err := observer.New(observer.Config{
		Market: observer.NewDexScreenerSource(config.PairID),
		Reader: client,
		Locker: config.LockerAddress,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create observer")
	}

	oracle, err := policy.NewOpenAIOracle(config.OpenAIAPIKey, config.OpenAIModel, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create policy oracle")
	}
	engine, err := policy.NewEngine(oracle, config.Constraints)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create policy engine")
	}

	exec, err := executor.NewEngine(ctx, client, signer, config.LockerAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create execution engine")
	}

	// --- 4. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}
	webServer := web.NewWebServer(webPort, engine.Constraints)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting status server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Agent Loop ---
	agentInstance, err := agent.New(agent.Config{
		Observer:       obs,
		Policy:         engine,
		Executor:       exec,
		Reader:         client,
		CycleCron:      config.CycleCron,
		StateSyncCron:  config.StateSyncCron,
		PersistReports: persistReports,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}

	log.Info().
		Str("cycle_cron", config.CycleCron).
		Str("state_sync_cron", config.StateSyncCron).
		Msg("Starting agent main loop")

	if err := agentInstance.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Agent loop exited with error")
	}

	log.Info().Msg("Neural Locker Agent shut down")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

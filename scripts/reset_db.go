package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/neurallock/nla/internal/logger"
	"github.com/neurallock/nla/internal/state"
)

// Drops and recreates the agent's report tables. Run with the same DB_* env
// vars the agent uses.
func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on OS environment variables")
	}

	cfg := state.DBConfig{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envPort(),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	if cfg.User == "" {
		log.Fatal().Msg("DB_USER environment variable not set")
	}
	if cfg.DBName == "" {
		log.Fatal().Msg("DB_NAME environment variable not set")
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Msg("Resetting database")

	if err := state.InitDB(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	const dropSQL = `
		DROP TABLE IF EXISTS cycle_reports CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := state.DB.Exec(dropSQL); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}

	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envPort() int {
	if raw := os.Getenv("DB_PORT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return 5432
}

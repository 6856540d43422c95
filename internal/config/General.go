package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RPCURL is the JSON-RPC endpoint of the target EVM network.
	RPCURL string

	// LockerAddress is the deployed LP locker contract.
	LockerAddress common.Address
	// LPTokenAddress is the LP token the locker holds.
	LPTokenAddress common.Address

	// PairID is the DexScreener pair identifier for market data.
	PairID string

	// OpenAIAPIKey authenticates against the policy oracle.
	OpenAIAPIKey string
	// OpenAIModel is the model identifier used for policy proposals.
	OpenAIModel string

	// SignerKey is the hex-encoded private key used for action signing.
	SignerKey string

	// MaxGasLimit is the static gas limit for all submitted transactions.
	MaxGasLimit uint64
	// MaxPriorityFeeWei is the static priority fee for all submitted transactions.
	MaxPriorityFeeWei uint64

	// CycleCron schedules the primary decision cycle.
	CycleCron string
	// StateSyncCron schedules the lower-frequency on-chain state publication.
	StateSyncCron string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Missing required variables abort startup.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RPCURL, err = getEnv("RPC_URL")
	if err != nil {
		return err
	}

	lockerHex, err := getEnv("LP_LOCKER_ADDRESS")
	if err != nil {
		return err
	}
	if !common.IsHexAddress(lockerHex) {
		return errors.New("environment variable LP_LOCKER_ADDRESS is not a valid address: " + lockerHex)
	}
	LockerAddress = common.HexToAddress(lockerHex)

	tokenHex, err := getEnv("LP_TOKEN_ADDRESS")
	if err != nil {
		return err
	}
	if !common.IsHexAddress(tokenHex) {
		return errors.New("environment variable LP_TOKEN_ADDRESS is not a valid address: " + tokenHex)
	}
	LPTokenAddress = common.HexToAddress(tokenHex)

	PairID, err = getEnv("DEXSCREENER_PAIR_ID")
	if err != nil {
		return err
	}

	OpenAIAPIKey, err = getEnv("OPENAI_API_KEY")
	if err != nil {
		return err
	}
	OpenAIModel = getEnvWithDefault("AI_MODEL", "gpt-4o-mini")

	SignerKey, err = getEnv("PRIVATE_KEY")
	if err != nil {
		return err
	}

	MaxGasLimit, err = getEnvAsUint64WithDefault("MAX_GAS_LIMIT", 500000)
	if err != nil {
		return err
	}
	MaxPriorityFeeWei, err = getEnvAsUint64WithDefault("MAX_PRIORITY_FEE", 2000000000) // 2 Gwei
	if err != nil {
		return err
	}

	CycleCron = getEnvWithDefault("CYCLE_INTERVAL", "*/5 * * * *")       // Every 5 minutes
	StateSyncCron = getEnvWithDefault("STATE_UPDATE_INTERVAL", "0 * * * *") // Every hour

	if err := loadConstraintConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("RPCURL", RPCURL).
		Str("Locker", LockerAddress.Hex()).
		Str("LPToken", LPTokenAddress.Hex()).
		Str("Model", OpenAIModel).
		Str("CycleCron", CycleCron).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable, falling back to
// the given default if unset.
func getEnvWithDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64WithDefault retrieves an environment variable as a uint64,
// falling back to the given default if unset. Returns error if set but invalid.
func getEnvAsUint64WithDefault(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64WithDefault retrieves an environment variable as a float64,
// falling back to the given default if unset. Returns error if set but invalid.
func getEnvAsFloat64WithDefault(key string, fallback float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

package infra

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables. Payment amounts, chain endpoints, and service addresses are
// configuration, never code constants.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// Inference backend (generation, verification, delivery endpoints).
	InferenceBaseURL string

	// Chain settings for wallet, payment, and token deployment.
	ChainRPCURL      string
	ChainID          int64
	CreatorAddress   string
	ChainPrivateKey  string
	CoinFactory      string
	PaymentMode      string // "mock" or "onchain"
	PaymentAmountWei *big.Int

	// Farcaster share.
	ComposeBaseURL    string
	ComposeAPIKey     string
	ComposeSignerUUID string

	// Asset storage.
	StorageBackend string // "memory", "file", or "minio"
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Base URL clients use to reach this server (asset links in casts).
	PublicBaseURL string

	AllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	CallTimeout      time.Duration
	RateLimitPerMin  int
}

// DefaultPaymentAmountWei is 0.01 ETH, the fixed reference amount the
// original flow charges per unlock.
const DefaultPaymentAmountWei = "10000000000000000"

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		InferenceBaseURL:  getEnv("INFERENCE_BASE_URL", "http://localhost:8000"),
		ChainRPCURL:       getEnv("BASE_RPC_URL", "https://mainnet.base.org"),
		ChainID:           int64(getEnvInt("CHAIN_ID", 8453)),
		CreatorAddress:    os.Getenv("CREATOR_ADDRESS"),
		ChainPrivateKey:   os.Getenv("CHAIN_PRIVATE_KEY"),
		CoinFactory:       os.Getenv("COIN_FACTORY_ADDRESS"),
		PaymentMode:       getEnv("PAYMENT_MODE", "mock"),
		ComposeBaseURL:    getEnv("COMPOSE_BASE_URL", "https://api.neynar.com/v2"),
		ComposeAPIKey:     os.Getenv("COMPOSE_API_KEY"),
		ComposeSignerUUID: os.Getenv("COMPOSE_SIGNER_UUID"),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		StorageBackend:    getEnv("STORAGE_BACKEND", "memory"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		MinioEndpoint:     os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       getEnv("MINIO_BUCKET", "videos"),
		MinioUseSSL:       getEnvBool("MINIO_USE_SSL", false),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		CallTimeout:       time.Second * time.Duration(getEnvInt("CALL_TIMEOUT_SECONDS", 180)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	for _, origin := range strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	amount := getEnv("PAYMENT_AMOUNT_WEI", DefaultPaymentAmountWei)
	wei, ok := new(big.Int).SetString(amount, 10)
	if !ok || wei.Sign() <= 0 {
		return nil, fmt.Errorf("PAYMENT_AMOUNT_WEI is not a positive integer: %q", amount)
	}
	cfg.PaymentAmountWei = wei

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PaymentMode != "mock" && cfg.PaymentMode != "onchain" {
		return nil, fmt.Errorf("PAYMENT_MODE must be mock or onchain, got %q", cfg.PaymentMode)
	}
	if cfg.PaymentMode == "onchain" && cfg.CreatorAddress == "" {
		return nil, fmt.Errorf("CREATOR_ADDRESS is required when PAYMENT_MODE=onchain")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
